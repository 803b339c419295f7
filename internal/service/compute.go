package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
	"parallel-quest/internal/tasks"
)

// TaskEnqueuer asynq.Client 满足此接口。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ComputeConfig 渲染服务的限制。
type ComputeConfig struct {
	MaxTimeLimitMs int64         // 单次运行允许的最大时间预算
	MaxPixels      int           // width*height 上限
	JobTTL         time.Duration // 异步任务状态在 Redis 中的保留时间
	Queue          string        // 异步任务队列
}

func DefaultComputeConfig() ComputeConfig {
	return ComputeConfig{
		MaxTimeLimitMs: 30_000,
		MaxPixels:      4096 * 4096,
		JobTTL:         time.Hour,
		Queue:          "default",
	}
}

// ComputeService 同步或异步执行分块渲染。
type ComputeService struct {
	jobs      repository.ComputeJobRepository
	enqueuer  TaskEnqueuer
	cfg       ComputeConfig
	logger    *logrus.Logger
	newRender func(width, height int) compute.RenderFunc
}

// NewComputeService 创建 ComputeService。jobs 和 enqueuer 为 nil 时只支持同步运行。
func NewComputeService(jobs repository.ComputeJobRepository, enqueuer TaskEnqueuer, cfg ComputeConfig, logger *logrus.Logger) *ComputeService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	def := DefaultComputeConfig()
	if cfg.MaxTimeLimitMs <= 0 {
		cfg.MaxTimeLimitMs = def.MaxTimeLimitMs
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = def.MaxPixels
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}
	if cfg.Queue == "" {
		cfg.Queue = def.Queue
	}
	return &ComputeService{
		jobs:      jobs,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    logger,
		newRender: compute.MandelbrotRenderer,
	}
}

// Config 返回生效的限制。
func (s *ComputeService) Config() ComputeConfig {
	return s.cfg
}

// AsyncEnabled 是否配置了异步任务
func (s *ComputeService) AsyncEnabled() bool {
	return s.jobs != nil && s.enqueuer != nil
}

// Check 校验参数以及服务自身的限制。
func (s *ComputeService) Check(p compute.Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidComputeParams, err)
	}
	if p.TimeLimitMs > s.cfg.MaxTimeLimitMs {
		return fmt.Errorf("%w: time_limit_ms must not exceed %d", ErrInvalidComputeParams, s.cfg.MaxTimeLimitMs)
	}
	// 用除法比较，宽高之积不会溢出
	if p.Width > s.cfg.MaxPixels/p.Height {
		return fmt.Errorf("%w: image must not exceed %d pixels", ErrInvalidComputeParams, s.cfg.MaxPixels)
	}
	return nil
}

// Run 同步执行一次渲染。emit 可以为 nil。
func (s *ComputeService) Run(p compute.Params, emit compute.EmitFunc) (*compute.Result, error) {
	if err := s.Check(p); err != nil {
		return nil, err
	}
	scheduler := compute.NewScheduler(s.newRender(p.Width, p.Height), s.logger)
	res, err := scheduler.Run(p, emit)
	if err != nil {
		if errors.Is(err, compute.ErrInvalidParams) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidComputeParams, err)
		}
		return nil, err
	}
	return res, nil
}

// Enqueue 保存一个 pending 状态的任务并投递到 asynq。
func (s *ComputeService) Enqueue(ctx context.Context, p compute.Params) (*domain.ComputeJob, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncUnavailable
	}
	if err := s.Check(p); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	now := time.Now()
	job := &domain.ComputeJob{
		ID:        uuid.NewString(),
		Status:    domain.JobPending,
		Params:    raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logCtx := logrus.WithField("job_id", job.ID)

	if err := s.jobs.SaveJob(ctx, job, s.cfg.JobTTL); err != nil {
		logCtx.WithError(err).Error("Failed to save pending compute job")
		return nil, mapRepoError("save job", err)
	}

	task, err := tasks.NewComputeRunTask(job.ID, p)
	if err != nil {
		return nil, fmt.Errorf("create compute task: %w", err)
	}
	if _, err := s.enqueuer.EnqueueContext(ctx, task, asynq.Queue(s.cfg.Queue)); err != nil {
		logCtx.WithError(err).Error("Failed to enqueue compute task")
		s.finishJob(ctx, job, nil, err)
		return nil, mapRepoError("enqueue compute task", err)
	}

	logCtx.WithFields(logrus.Fields{"mode": p.Mode, "queue": s.cfg.Queue}).Info("Compute job enqueued")
	return job, nil
}

// ExecuteJob 由 worker 调用：执行渲染并把结果写回任务状态。
func (s *ComputeService) ExecuteJob(ctx context.Context, jobID string, p compute.Params) error {
	if s.jobs == nil {
		return ErrAsyncUnavailable
	}
	job, err := s.jobs.FindJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, repository.ErrJobNotFound) {
			return mapRepoError("find job", err)
		}
		// 状态已过期，重新建立记录
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		job = &domain.ComputeJob{ID: jobID, Params: raw, CreatedAt: time.Now()}
	}

	job.Status = domain.JobRunning
	job.UpdatedAt = time.Now()
	if err := s.jobs.SaveJob(ctx, job, s.cfg.JobTTL); err != nil {
		return mapRepoError("save job", err)
	}

	res, runErr := s.Run(p, nil)
	return s.finishJob(ctx, job, res, runErr)
}

// GetJob 查询任务状态。
func (s *ComputeService) GetJob(ctx context.Context, jobID string) (*domain.ComputeJob, error) {
	if s.jobs == nil {
		return nil, ErrAsyncUnavailable
	}
	job, err := s.jobs.FindJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, mapRepoError("find job", err)
	}
	return job, nil
}

// finishJob 写入最终状态，返回 runErr (或保存失败的错误)。
func (s *ComputeService) finishJob(ctx context.Context, job *domain.ComputeJob, res *compute.Result, runErr error) error {
	job.UpdatedAt = time.Now()
	if runErr != nil {
		job.Status = domain.JobFailed
		job.Error = runErr.Error()
	} else {
		raw, err := json.Marshal(res)
		if err != nil {
			runErr = fmt.Errorf("marshal result: %w", err)
			job.Status = domain.JobFailed
			job.Error = runErr.Error()
		} else {
			job.Status = domain.JobDone
			job.Result = raw
		}
	}
	if err := s.jobs.SaveJob(ctx, job, s.cfg.JobTTL); err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Error("Failed to save compute job result")
		if runErr == nil {
			return mapRepoError("save job", err)
		}
	}
	return runErr
}
