package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var (
	_ repository.EventPublisher       = (*EventPublisher)(nil)
	_ repository.ComputeJobRepository = (*ComputeJobRepository)(nil)
)

// EventPublisher repository.EventPublisher 的 testify mock
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	return m.Called(ctx, event).Error(0)
}

// ComputeJobRepository repository.ComputeJobRepository 的 testify mock
type ComputeJobRepository struct {
	mock.Mock
}

func (m *ComputeJobRepository) SaveJob(ctx context.Context, job *domain.ComputeJob, ttl time.Duration) error {
	return m.Called(ctx, job, ttl).Error(0)
}

func (m *ComputeJobRepository) FindJob(ctx context.Context, id string) (*domain.ComputeJob, error) {
	ret := m.Called(ctx, id)
	job, _ := ret.Get(0).(*domain.ComputeJob)
	return job, ret.Error(1)
}
