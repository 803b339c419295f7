package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// PointerSyncer service.RoomService 满足此接口
type PointerSyncer interface {
	SyncMembershipPointers(ctx context.Context) (int, error)
}

// RoomSyncHandler 处理周期性的房间指针清理任务
type RoomSyncHandler struct {
	rooms PointerSyncer
}

func NewRoomSyncHandler(rooms PointerSyncer) *RoomSyncHandler {
	return &RoomSyncHandler{rooms: rooms}
}

// ProcessTask 实现 asynq.Handler
func (h *RoomSyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fixed, err := h.rooms.SyncMembershipPointers(ctx)
	if err != nil {
		return fmt.Errorf("room pointer sync: %w", err)
	}
	logrus.WithFields(logrus.Fields{"task_type": t.Type(), "fixed": fixed}).Debug("Room pointer sync finished")
	return nil
}
