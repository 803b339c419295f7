package repository

import (
	"context"
	"time"

	"parallel-quest/internal/domain"
)

// EventPublisher 将房间事件发布到房间频道，通常由 Redis 实现。
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error
}

// ComputeJobRepository 异步渲染任务的状态存储，带过期时间。
type ComputeJobRepository interface {
	// SaveJob 保存任务状态，ttl 为 0 表示不过期。
	SaveJob(ctx context.Context, job *domain.ComputeJob, ttl time.Duration) error

	// FindJob 查找任务，不存在或已过期时返回 ErrJobNotFound。
	FindJob(ctx context.Context, id string) (*domain.ComputeJob, error)
}
