package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var (
	_ repository.EventPublisher       = (*RedisStateRepository)(nil)
	_ repository.ComputeJobRepository = (*RedisStateRepository)(nil)
)

// RedisStateRepository 房间事件发布和异步渲染任务状态的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "pq:" // 默认前缀 (parallel quest)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

// RoomEventsChannel 房间事件频道名，订阅方使用相同的规则
func (r *RedisStateRepository) RoomEventsChannel(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:events", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) computeJobKey(id string) string {
	return fmt.Sprintf("%scompute:job:%s", r.keyPrefix, id)
}

// PublishRoomEvent 将事件 JSON 发布到房间频道
func (r *RedisStateRepository) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room event %s for room %d: %w", event.Type, event.RoomID, err)
	}
	channel := r.RoomEventsChannel(event.RoomID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish room event to %s: %w", channel, err)
	}
	return nil
}

// SaveJob 以 JSON 保存任务状态
func (r *RedisStateRepository) SaveJob(ctx context.Context, job *domain.ComputeJob, ttl time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal compute job %s: %w", job.ID, err)
	}
	key := r.computeJobKey(job.ID)
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to save compute job to %s: %w", key, err)
	}
	return nil
}

// FindJob 读取任务状态，key 不存在时返回 repository.ErrJobNotFound
func (r *RedisStateRepository) FindJob(ctx context.Context, id string) (*domain.ComputeJob, error) {
	key := r.computeJobKey(id)
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("redis: failed to get compute job from %s: %w", key, err)
	}
	var job domain.ComputeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal compute job %s: %w", id, err)
	}
	return &job, nil
}
