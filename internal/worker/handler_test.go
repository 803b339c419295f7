package worker

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/service"
	"parallel-quest/internal/tasks"
)

func init() {
	logrus.SetOutput(io.Discard)
}

type fakeExecutor struct {
	jobID  string
	params compute.Params
	err    error
}

func (f *fakeExecutor) ExecuteJob(ctx context.Context, jobID string, p compute.Params) error {
	f.jobID, f.params = jobID, p
	return f.err
}

type fakeSyncer struct {
	calls int
	err   error
}

func (f *fakeSyncer) SyncMembershipPointers(ctx context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

func TestComputeRunHandler_ExecutesJob(t *testing.T) {
	exec := &fakeExecutor{}
	params := compute.DefaultParams()
	task, err := tasks.NewComputeRunTask("job-7", params)
	require.NoError(t, err)

	require.NoError(t, NewComputeRunHandler(exec).ProcessTask(context.Background(), task))
	assert.Equal(t, "job-7", exec.jobID)
	assert.Equal(t, params, exec.params)
}

func TestComputeRunHandler_SkipsRetryOnBadInput(t *testing.T) {
	h := NewComputeRunHandler(&fakeExecutor{})
	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeComputeRun, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := tasks.NewComputeRunTask("job-8", compute.DefaultParams())
	h = NewComputeRunHandler(&fakeExecutor{err: service.ErrInvalidComputeParams})
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)

	h = NewComputeRunHandler(&fakeExecutor{err: errors.New("redis down")})
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "存储错误允许重试")
}

func TestRoomSyncHandler(t *testing.T) {
	syncer := &fakeSyncer{}
	require.NoError(t, NewRoomSyncHandler(syncer).ProcessTask(context.Background(), tasks.NewRoomSyncCleanupTask()))
	assert.Equal(t, 1, syncer.calls)

	syncer.err = errors.New("db down")
	assert.Error(t, NewRoomSyncHandler(syncer).ProcessTask(context.Background(), tasks.NewRoomSyncCleanupTask()))
}
