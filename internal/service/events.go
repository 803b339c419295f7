package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// notifier 包装可选的 EventPublisher。
// 事件只是给订阅者的通知，发布失败记录日志，不影响已经提交的状态变更。
type notifier struct {
	pub repository.EventPublisher
}

func (n notifier) publish(ctx context.Context, event domain.RoomEvent) {
	if n.pub == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if err := n.pub.PublishRoomEvent(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": event.RoomID,
			"event":   event.Type,
		}).Warn("Failed to publish room event")
	}
}
