package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var _ repository.RoomRepository = (*RoomRepository)(nil)

// RoomRepository repository.RoomRepository 的 testify mock
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	ret := m.Called(ctx, id)
	room, _ := ret.Get(0).(*domain.Room)
	return room, ret.Error(1)
}

func (m *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	ret := m.Called(ctx, code)
	room, _ := ret.Get(0).(*domain.Room)
	return room, ret.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	return m.Called(ctx, room).Error(0)
}

func (m *RoomRepository) ListWithMemberCount(ctx context.Context) ([]domain.RoomSummary, error) {
	ret := m.Called(ctx)
	list, _ := ret.Get(0).([]domain.RoomSummary)
	return list, ret.Error(1)
}

func (m *RoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	ret := m.Called(ctx, code)
	return ret.Bool(0), ret.Error(1)
}

func (m *RoomRepository) IncrementEpoch(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RoomRepository) Delete(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}
