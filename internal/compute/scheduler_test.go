package compute

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// busyRender 与分块大小和迭代次数成正比的确定性 CPU 负载
func busyRender(tile Tile, maxIter int) ([]uint16, error) {
	acc := 0
	for i := 0; i < tile.Pixels()*maxIter; i++ {
		acc += i % 7
	}
	_ = acc
	return nil, nil
}

func params(mode Mode, w, h, tw, th int, limitMs int64, workers int) Params {
	return Params{
		Width: w, Height: h, TileWidth: tw, TileHeight: th,
		MaxIter: 16, TimeLimitMs: limitMs, Mode: mode, NumWorkers: workers,
	}
}

func taskIDs(records []TaskRecord) []int {
	ids := make([]int, len(records))
	for i, r := range records {
		ids[i] = r.TaskID
	}
	return ids
}

func TestScheduler_Sequential_FourTiles(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())

	var emitted []int
	res, err := s.Run(params(ModeSequential, 100, 100, 50, 50, 60_000, 0), func(rec TaskRecord, tile Tile, _ []uint16) {
		assert.Equal(t, rec.TaskID, tile.TaskID)
		emitted = append(emitted, rec.TaskID)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, taskIDs(res.Records))
	assert.Equal(t, []int{0, 1, 2, 3}, emitted, "顺序模式回调按 TaskID 顺序触发")
	assert.Equal(t, 4, res.TotalTiles)
	assert.Equal(t, 4, res.CompletedCount)
	assert.False(t, res.Truncated)
	assert.Equal(t, 1, res.Workers)

	var prevEnd float64
	for _, rec := range res.Records {
		assert.Equal(t, rec.EndMs-rec.StartMs, rec.DurationMs)
		assert.GreaterOrEqual(t, rec.DurationMs, 0.0)
		assert.GreaterOrEqual(t, rec.StartMs, prevEnd, "顺序模式下分块不会时间重叠")
		prevEnd = rec.EndMs
	}
}

func TestScheduler_ZeroBudget_Truncates(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())

	for _, mode := range []Mode{ModeSequential, ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			calls := 0
			var mu sync.Mutex
			res, err := s.Run(params(mode, 200, 200, 10, 10, 0, 4), func(TaskRecord, Tile, []uint16) {
				mu.Lock()
				calls++
				mu.Unlock()
			})
			require.NoError(t, err)
			assert.Equal(t, 400, res.TotalTiles)
			assert.Less(t, res.CompletedCount, res.TotalTiles)
			assert.True(t, res.Truncated)
			assert.Equal(t, res.CompletedCount, calls)
		})
	}
}

func TestScheduler_Sequential_TruncatedResultIsPrefix(t *testing.T) {
	slow := func(tile Tile, maxIter int) ([]uint16, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	s := NewScheduler(slow, quietLogger())

	res, err := s.Run(params(ModeSequential, 100, 100, 10, 10, 20, 0), nil)
	require.NoError(t, err)

	require.True(t, res.Truncated)
	require.Less(t, res.CompletedCount, res.TotalTiles)
	for i, rec := range res.Records {
		assert.Equal(t, i, rec.TaskID, "截断后的结果必须是 0..k-1 的前缀")
	}
}

func TestScheduler_Concurrent_CoversSameTilesAsSequential(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())

	seq, err := s.Run(params(ModeSequential, 300, 200, 32, 32, 60_000, 0), nil)
	require.NoError(t, err)
	conc, err := s.Run(params(ModeConcurrent, 300, 200, 32, 32, 60_000, 4), nil)
	require.NoError(t, err)

	assert.Equal(t, seq.TotalTiles, conc.TotalTiles)
	assert.Equal(t, seq.CompletedCount, conc.CompletedCount)
	assert.Equal(t, taskIDs(seq.Records), taskIDs(conc.Records), "Records 按 TaskID 排序")
	assert.False(t, conc.Truncated)
	assert.Equal(t, 4, conc.Workers)
}

func TestScheduler_Concurrent_EmitsOncePerTile(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())

	var mu sync.Mutex
	seen := make(map[int]int)
	res, err := s.Run(params(ModeConcurrent, 256, 256, 16, 16, 60_000, 8), func(rec TaskRecord, tile Tile, _ []uint16) {
		mu.Lock()
		defer mu.Unlock()
		seen[rec.TaskID]++
	})
	require.NoError(t, err)

	require.Equal(t, 256, res.CompletedCount)
	assert.Len(t, seen, 256)
	for id, n := range seen {
		assert.Equal(t, 1, n, "tile %d emitted %d times", id, n)
	}
}

func TestScheduler_Concurrent_DefaultsWorkersToCPUCount(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())
	res, err := s.Run(params(ModeConcurrent, 64, 64, 32, 32, 60_000, 0), nil)
	require.NoError(t, err)
	assert.Positive(t, res.Workers)
	assert.Equal(t, 4, res.CompletedCount)
}

func TestScheduler_FailedTilesAreDropped(t *testing.T) {
	boom := errors.New("kernel failure")
	render := func(tile Tile, maxIter int) ([]uint16, error) {
		switch tile.TaskID {
		case 1:
			panic("out of range")
		case 2:
			return nil, boom
		}
		return nil, nil
	}
	s := NewScheduler(render, quietLogger())

	for _, mode := range []Mode{ModeSequential, ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := s.Run(params(mode, 100, 100, 50, 50, 60_000, 2), nil)
			require.NoError(t, err, "分块失败不应让整个运行失败")

			assert.Equal(t, []int{0, 3}, taskIDs(res.Records))
			assert.Equal(t, []int{1, 2}, res.FailedTasks)
			assert.Equal(t, 2, res.CompletedCount)
			assert.False(t, res.Truncated, "失败不等于截断")
		})
	}
}

func TestScheduler_RunTile_WrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(func(Tile, int) ([]uint16, error) { return nil, boom }, quietLogger())

	_, _, err := s.runTile(time.Now(), Tile{TaskID: 7, Width: 1, Height: 1}, 1)
	var tileErr *TileExecutionError
	require.ErrorAs(t, err, &tileErr)
	assert.Equal(t, 7, tileErr.TaskID)
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_InvalidParams(t *testing.T) {
	s := NewScheduler(busyRender, quietLogger())
	_, err := s.Run(params(ModeSequential, 0, 100, 50, 50, 100, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestScheduler_MandelbrotRenderer(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height, p.MaxIter = 128, 96, 32
	p.Mode = ModeConcurrent
	p.TimeLimitMs = 60_000

	var mu sync.Mutex
	pixels := 0
	res, err := NewScheduler(MandelbrotRenderer(p.Width, p.Height), quietLogger()).Run(p, func(rec TaskRecord, tile Tile, data []uint16) {
		mu.Lock()
		defer mu.Unlock()
		// 每个分块都带上完整的逃逸步数
		assert.Len(t, data, tile.Pixels(), "tile %d", tile.TaskID)
		for _, v := range data {
			assert.LessOrEqual(t, int(v), p.MaxIter)
		}
		pixels += len(data)
	})
	require.NoError(t, err)
	assert.Equal(t, TileCount(128, 96, 64, 64), res.CompletedCount)
	assert.Equal(t, 128*96, pixels)
}

func TestRenderMandelbrotTile_OriginIsInsideSet(t *testing.T) {
	// 画布 350×200 时像素 (250,100) 对应 c = 0，永不逃逸
	data := RenderMandelbrotTile(350, 200, Tile{X: 250, Y: 100, Width: 1, Height: 1}, 64)
	require.Len(t, data, 1)
	assert.Equal(t, uint16(64), data[0])
}

func TestNewScheduler_NilRenderPanics(t *testing.T) {
	assert.Panics(t, func() { NewScheduler(nil, nil) })
}
