package compute

import (
	"errors"
	"fmt"
)

var ErrInvalidParams = errors.New("compute: invalid parameters")

// TileExecutionError 单个分块执行失败。只记录在 Result.FailedTasks 中，不会从 Run 返回。
type TileExecutionError struct {
	TaskID int
	Err    error
}

func (e *TileExecutionError) Error() string {
	return fmt.Sprintf("compute: tile %d failed: %v", e.TaskID, e.Err)
}

func (e *TileExecutionError) Unwrap() error {
	return e.Err
}

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
