package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
	"parallel-quest/internal/repository/mocks"
	"parallel-quest/internal/service"
	"parallel-quest/internal/tasks"
)

// fakeEnqueuer 记录投递的任务
type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func smallParams(mode compute.Mode) compute.Params {
	p := compute.DefaultParams()
	p.Width, p.Height, p.MaxIter = 128, 128, 32
	p.TimeLimitMs = 10_000
	p.Mode = mode
	return p
}

func TestComputeService_Run(t *testing.T) {
	svc := service.NewComputeService(nil, nil, service.ComputeConfig{}, nil)

	for _, mode := range []compute.Mode{compute.ModeSequential, compute.ModeConcurrent} {
		res, err := svc.Run(smallParams(mode), nil)
		require.NoError(t, err)
		assert.Equal(t, mode, res.Mode)
		assert.Equal(t, 4, res.TotalTiles)
	}
}

func TestComputeService_RunRejectsInvalidParams(t *testing.T) {
	svc := service.NewComputeService(nil, nil, service.ComputeConfig{MaxTimeLimitMs: 5_000, MaxPixels: 1 << 20}, nil)

	p := smallParams(compute.ModeSequential)
	p.TileWidth = 0
	_, err := svc.Run(p, nil)
	assert.ErrorIs(t, err, service.ErrInvalidComputeParams)
	assert.ErrorIs(t, err, compute.ErrInvalidParams)

	p = smallParams(compute.ModeSequential)
	p.TimeLimitMs = 6_000
	_, err = svc.Run(p, nil)
	assert.ErrorIs(t, err, service.ErrInvalidComputeParams, "超过服务允许的时间预算")

	p = smallParams(compute.ModeSequential)
	p.TimeLimitMs = 1_000
	p.Width, p.Height = 2048, 1024
	_, err = svc.Run(p, nil)
	assert.ErrorIs(t, err, service.ErrInvalidComputeParams, "超过像素上限")
}

func TestComputeService_EnqueueAndExecute(t *testing.T) {
	// Arrange
	jobs := new(mocks.ComputeJobRepository)
	enq := &fakeEnqueuer{}
	svc := service.NewComputeService(jobs, enq, service.ComputeConfig{JobTTL: time.Minute}, nil)
	ctx := context.Background()
	p := smallParams(compute.ModeConcurrent)

	var saved []domain.ComputeJob
	jobs.On("SaveJob", ctx, mock.AnythingOfType("*domain.ComputeJob"), time.Minute).
		Run(func(args mock.Arguments) {
			saved = append(saved, *args.Get(1).(*domain.ComputeJob))
		}).Return(nil)

	// Act: 入队
	job, err := svc.Enqueue(ctx, p)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, tasks.TypeComputeRun, enq.tasks[0].Type())
	payload, err := tasks.ParseComputeRunPayload(enq.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, job.ID, payload.JobID)

	// Act: worker 执行
	jobs.On("FindJob", ctx, job.ID).Return(job, nil).Once()
	require.NoError(t, svc.ExecuteJob(ctx, payload.JobID, payload.Params))

	// Assert: pending -> running -> done
	require.Len(t, saved, 3)
	assert.Equal(t, domain.JobRunning, saved[1].Status)
	final := saved[2]
	assert.Equal(t, domain.JobDone, final.Status)
	var res compute.Result
	require.NoError(t, json.Unmarshal(final.Result, &res))
	assert.Equal(t, 4, res.CompletedCount)
	jobs.AssertExpectations(t)
}

func TestComputeService_RejectsOverflowingSize(t *testing.T) {
	svc := service.NewComputeService(nil, nil, service.ComputeConfig{}, nil)

	// width*height 回绕为 0 时也必须被拒绝，否则单个分块会申请巨大的缓冲
	p := smallParams(compute.ModeSequential)
	p.Width, p.Height = 1<<33, 1<<31
	p.TileWidth, p.TileHeight = 1<<33, 1<<11
	assert.ErrorIs(t, svc.Check(p), service.ErrInvalidComputeParams)

	// 单边都在范围内但乘积超过服务上限
	svc = service.NewComputeService(nil, nil, service.ComputeConfig{MaxPixels: 1 << 20}, nil)
	p = smallParams(compute.ModeSequential)
	p.Width, p.Height = 1<<12, 1<<9
	assert.ErrorIs(t, svc.Check(p), service.ErrInvalidComputeParams)
	p.Height = 1 << 8
	assert.NoError(t, svc.Check(p), "恰好等于上限")
}

func TestComputeService_ExecuteExpiredJob(t *testing.T) {
	jobs := new(mocks.ComputeJobRepository)
	svc := service.NewComputeService(jobs, &fakeEnqueuer{}, service.ComputeConfig{}, nil)
	ctx := context.Background()
	p := smallParams(compute.ModeSequential)

	var last domain.ComputeJob
	jobs.On("FindJob", ctx, "expired").Return(nil, repository.ErrJobNotFound).Once()
	jobs.On("SaveJob", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = *args.Get(1).(*domain.ComputeJob) }).
		Return(nil)

	require.NoError(t, svc.ExecuteJob(ctx, "expired", p))

	// 状态过期后重新建立记录，参数按原样保存
	assert.Equal(t, "expired", last.ID)
	assert.Equal(t, domain.JobDone, last.Status)
	var stored compute.Params
	require.NoError(t, json.Unmarshal(last.Params, &stored))
	assert.Equal(t, p, stored)
}

func TestComputeService_EnqueueFailureMarksJobFailed(t *testing.T) {
	jobs := new(mocks.ComputeJobRepository)
	enq := &fakeEnqueuer{err: errors.New("redis unavailable")}
	svc := service.NewComputeService(jobs, enq, service.ComputeConfig{}, nil)
	ctx := context.Background()

	var last domain.ComputeJob
	jobs.On("SaveJob", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = *args.Get(1).(*domain.ComputeJob) }).
		Return(nil)

	_, err := svc.Enqueue(ctx, smallParams(compute.ModeSequential))
	assert.ErrorIs(t, err, service.ErrInternalServer)
	assert.Equal(t, domain.JobFailed, last.Status)
	assert.Contains(t, last.Error, "redis unavailable")
}

func TestComputeService_GetJob(t *testing.T) {
	jobs := new(mocks.ComputeJobRepository)
	svc := service.NewComputeService(jobs, &fakeEnqueuer{}, service.ComputeConfig{}, nil)
	ctx := context.Background()

	jobs.On("FindJob", ctx, "missing").Return(nil, repository.ErrJobNotFound).Once()
	_, err := svc.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrJobNotFound)

	jobs.On("FindJob", ctx, "j1").Return(&domain.ComputeJob{ID: "j1", Status: domain.JobDone}, nil).Once()
	job, err := svc.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
}

func TestComputeService_AsyncDisabled(t *testing.T) {
	svc := service.NewComputeService(nil, nil, service.ComputeConfig{}, nil)
	_, err := svc.Enqueue(context.Background(), smallParams(compute.ModeSequential))
	assert.ErrorIs(t, err, service.ErrAsyncUnavailable)
	_, err = svc.GetJob(context.Background(), "x")
	assert.ErrorIs(t, err, service.ErrAsyncUnavailable)
}
