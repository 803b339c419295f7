package compute

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RenderFunc 处理单个分块的计算内核，返回按行存储的像素数据 (可以为 nil)。
// 并发模式下会被多个 worker 同时调用，实现必须无副作用或自行做好同步。
type RenderFunc func(tile Tile, maxIter int) ([]uint16, error)

// EmitFunc 每完成一个分块回调一次，data 是该分块的像素数据。
// Result 不保留像素数据，需要的调用方在这里取走。
// 并发模式下从不同 worker goroutine 调用，实现必须是并发安全的。
type EmitFunc func(record TaskRecord, tile Tile, data []uint16)

// TaskRecord 单个分块的计时结果，时间相对于本次运行开始 (单调时钟)，单位毫秒。
type TaskRecord struct {
	TaskID     int     `json:"task_id"`
	StartMs    float64 `json:"start_ms"`
	EndMs      float64 `json:"end_ms"`
	DurationMs float64 `json:"duration_ms"`
}

func newTaskRecord(taskID int, start, end time.Duration) TaskRecord {
	startMs, endMs := toMillis(start), toMillis(end)
	return TaskRecord{
		TaskID:     taskID,
		StartMs:    startMs,
		EndMs:      endMs,
		DurationMs: endMs - startMs,
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Result 一次运行的结果。Records 总是按 TaskID 升序。
// Truncated 为 true 表示时间预算耗尽，部分分块没有开始执行，这是正常结果而不是错误。
type Result struct {
	Mode           Mode         `json:"mode"`
	Workers        int          `json:"workers"`
	Records        []TaskRecord `json:"records"`
	TotalTiles     int          `json:"total_tiles"`
	CompletedCount int          `json:"completed_count"`
	FailedTasks    []int        `json:"failed_tasks,omitempty"`
	Truncated      bool         `json:"truncated"`
	ElapsedMs      float64      `json:"elapsed_ms"`
}

// Scheduler 分块调度器。
type Scheduler struct {
	render RenderFunc
	log    *logrus.Entry
}

// NewScheduler 创建调度器，render 为 nil 时 panic。
func NewScheduler(render RenderFunc, logger *logrus.Logger) *Scheduler {
	if render == nil {
		panic("RenderFunc cannot be nil for Scheduler")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		render: render,
		log:    logger.WithField("component", "tile_scheduler"),
	}
}

// Run 按 p.Mode 执行分块渲染。emit 可以为 nil。
// 只有参数非法时返回错误；单个分块失败会被丢弃并记录，不影响其余分块。
func (s *Scheduler) Run(p Params, emit EmitFunc) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tiles := Partition(p.Width, p.Height, p.TileWidth, p.TileHeight)

	var res *Result
	switch p.Mode {
	case ModeConcurrent:
		workers := p.NumWorkers
		if workers == 0 {
			workers = runtime.NumCPU()
		}
		res = s.runConcurrent(tiles, p.MaxIter, p.TimeLimit(), workers, emit)
	default:
		res = s.runSequential(tiles, p.MaxIter, p.TimeLimit(), emit)
	}
	res.Mode = p.Mode

	s.log.WithFields(logrus.Fields{
		"mode":       res.Mode,
		"workers":    res.Workers,
		"total":      res.TotalTiles,
		"completed":  res.CompletedCount,
		"failed":     len(res.FailedTasks),
		"truncated":  res.Truncated,
		"elapsed_ms": res.ElapsedMs,
	}).Info("Tile run finished")
	return res, nil
}

func (s *Scheduler) runSequential(tiles []Tile, maxIter int, limit time.Duration, emit EmitFunc) *Result {
	res := &Result{Workers: 1, TotalTiles: len(tiles), Records: make([]TaskRecord, 0, len(tiles))}
	start := time.Now()

	started := 0
	for _, tile := range tiles {
		// 每个分块开始前检查截止时间
		if time.Since(start) >= limit {
			break
		}
		started++
		rec, data, err := s.runTile(start, tile, maxIter)
		if err != nil {
			s.logTileFailure(err)
			res.FailedTasks = append(res.FailedTasks, tile.TaskID)
			continue
		}
		res.Records = append(res.Records, rec)
		if emit != nil {
			emit(rec, tile, data)
		}
	}

	res.CompletedCount = len(res.Records)
	res.Truncated = started < len(tiles)
	res.ElapsedMs = toMillis(time.Since(start))
	return res
}

func (s *Scheduler) runConcurrent(tiles []Tile, maxIter int, limit time.Duration, workers int, emit EmitFunc) *Result {
	res := &Result{Workers: workers, TotalTiles: len(tiles), Records: make([]TaskRecord, 0, len(tiles))}

	// 共享 FIFO 队列，channel 保证每个分块只被一个 worker 取走
	queue := make(chan Tile, len(tiles))
	for _, tile := range tiles {
		queue <- tile
	}
	close(queue)

	var (
		timeUp  atomic.Bool
		claimed atomic.Int64
		mu      sync.Mutex
		g       errgroup.Group
	)
	start := time.Now()

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if timeUp.Load() {
					return nil
				}
				if time.Since(start) >= limit {
					timeUp.Store(true)
					return nil
				}
				tile, ok := <-queue
				if !ok {
					return nil
				}
				claimed.Add(1)

				rec, data, err := s.runTile(start, tile, maxIter)
				mu.Lock()
				if err != nil {
					res.FailedTasks = append(res.FailedTasks, tile.TaskID)
				} else {
					res.Records = append(res.Records, rec)
				}
				mu.Unlock()

				if err != nil {
					s.logTileFailure(err)
					continue
				}
				if emit != nil {
					emit(rec, tile, data)
				}
			}
		})
	}
	_ = g.Wait() // worker 不返回错误

	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].TaskID < res.Records[j].TaskID })
	sort.Ints(res.FailedTasks)
	res.CompletedCount = len(res.Records)
	res.Truncated = int(claimed.Load()) < len(tiles)
	res.ElapsedMs = toMillis(time.Since(start))
	return res
}

// runTile 执行单个分块，render 的错误和 panic 都转换为 *TileExecutionError。
func (s *Scheduler) runTile(runStart time.Time, tile Tile, maxIter int) (rec TaskRecord, data []uint16, err error) {
	begin := time.Since(runStart)
	defer func() {
		if r := recover(); r != nil {
			err = &TileExecutionError{TaskID: tile.TaskID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, rerr := s.render(tile, maxIter)
	if rerr != nil {
		return TaskRecord{}, nil, &TileExecutionError{TaskID: tile.TaskID, Err: rerr}
	}
	return newTaskRecord(tile.TaskID, begin, time.Since(runStart)), data, nil
}

func (s *Scheduler) logTileFailure(err error) {
	entry := s.log.WithError(err)
	var tileErr *TileExecutionError
	if errors.As(err, &tileErr) {
		entry = entry.WithField("task_id", tileErr.TaskID)
	}
	entry.Warn("Tile dropped after execution error")
}
