package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var _ repository.UserRepository = (*UserRepository)(nil)

// UserRepository repository.UserRepository 的 testify mock
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	ret := m.Called(ctx, id)
	user, _ := ret.Get(0).(*domain.User)
	return user, ret.Error(1)
}

func (m *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	ret := m.Called(ctx, ids)
	users, _ := ret.Get(0).([]domain.User)
	return users, ret.Error(1)
}

func (m *UserRepository) SetCurrentRoom(ctx context.Context, userID uint, roomID *uint) error {
	return m.Called(ctx, userID, roomID).Error(0)
}

func (m *UserRepository) ClearCurrentRoom(ctx context.Context, roomID uint, userIDs []uint) error {
	return m.Called(ctx, roomID, userIDs).Error(0)
}

func (m *UserRepository) FindWithDanglingRoom(ctx context.Context) ([]domain.User, error) {
	ret := m.Called(ctx)
	users, _ := ret.Get(0).([]domain.User)
	return users, ret.Error(1)
}
