package domain

import (
	"encoding/json"
	"time"
)

type ComputeJobStatus string

const (
	JobPending ComputeJobStatus = "pending"
	JobRunning ComputeJobStatus = "running"
	JobDone    ComputeJobStatus = "done"
	JobFailed  ComputeJobStatus = "failed"
)

// ComputeJob 异步分块渲染任务。Params 和 Result 以 JSON 原样保存。
type ComputeJob struct {
	ID        string           `json:"id"`
	Status    ComputeJobStatus `json:"status"`
	Params    json.RawMessage  `json:"params"`
	Result    json.RawMessage  `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
