package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"parallel-quest/internal/compute"
)

// 定义任务类型常量
const (
	TypeComputeRun      = "compute:run"       // 异步分块渲染
	TypeRoomSyncCleanup = "room:sync_cleanup" // 周期性清理悬挂的当前房间指针
)

// ComputeRunPayload 异步渲染任务的数据。JobID 与 Redis 中保存的任务状态对应。
type ComputeRunPayload struct {
	JobID  string         `json:"job_id"`
	Params compute.Params `json:"params"`
}

// NewComputeRunTask 创建渲染任务，asynq 任务 ID 与 JobID 相同，重复入队会被拒绝。
func NewComputeRunTask(jobID string, params compute.Params) (*asynq.Task, error) {
	payload, err := json.Marshal(ComputeRunPayload{JobID: jobID, Params: params})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeComputeRun, payload, asynq.TaskID(jobID), asynq.MaxRetry(0)), nil
}

// ParseComputeRunPayload 解析渲染任务数据。
func ParseComputeRunPayload(t *asynq.Task) (ComputeRunPayload, error) {
	var p ComputeRunPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

// NewRoomSyncCleanupTask 周期任务没有数据。
func NewRoomSyncCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeRoomSyncCleanup, nil)
}
