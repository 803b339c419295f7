package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/service"
	"parallel-quest/internal/tasks"
)

// JobExecutor service.ComputeService 满足此接口
type JobExecutor interface {
	ExecuteJob(ctx context.Context, jobID string, p compute.Params) error
}

// ComputeRunHandler 处理异步渲染任务
type ComputeRunHandler struct {
	jobs JobExecutor
}

func NewComputeRunHandler(jobs JobExecutor) *ComputeRunHandler {
	return &ComputeRunHandler{jobs: jobs}
}

// ProcessTask 实现 asynq.Handler。参数错误不会重试。
func (h *ComputeRunHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	payload, err := tasks.ParseComputeRunPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"job_id": payload.JobID, "mode": payload.Params.Mode})
	logCtx.Info("Processing compute job...")

	if err := h.jobs.ExecuteJob(ctx, payload.JobID, payload.Params); err != nil {
		if errors.Is(err, service.ErrInvalidComputeParams) {
			return fmt.Errorf("compute job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("compute job %s: %w", payload.JobID, err)
	}
	logCtx.Info("Compute job finished")
	return nil
}
