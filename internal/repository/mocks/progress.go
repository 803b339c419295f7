package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"parallel-quest/internal/repository"
)

var _ repository.ProgressRepository = (*ProgressRepository)(nil)

// ProgressRepository repository.ProgressRepository 的 testify mock
type ProgressRepository struct {
	mock.Mock
}

func (m *ProgressRepository) InsertModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	ret := m.Called(ctx, userID, moduleNumber)
	return ret.Bool(0), ret.Error(1)
}

func (m *ProgressRepository) DeleteModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	ret := m.Called(ctx, userID, moduleNumber)
	return ret.Bool(0), ret.Error(1)
}

func (m *ProgressRepository) CompletedModules(ctx context.Context, userID uint) ([]int, error) {
	ret := m.Called(ctx, userID)
	mods, _ := ret.Get(0).([]int)
	return mods, ret.Error(1)
}

func (m *ProgressRepository) CountCompleted(ctx context.Context, userIDs []uint, moduleNumber int) (int64, error) {
	ret := m.Called(ctx, userIDs, moduleNumber)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

func (m *ProgressRepository) DeleteCompletionsForUsers(ctx context.Context, userIDs []uint) error {
	return m.Called(ctx, userIDs).Error(0)
}

func (m *ProgressRepository) InsertRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	ret := m.Called(ctx, roomID, moduleNumber)
	return ret.Bool(0), ret.Error(1)
}

func (m *ProgressRepository) DeleteRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	ret := m.Called(ctx, roomID, moduleNumber)
	return ret.Bool(0), ret.Error(1)
}

func (m *ProgressRepository) RoomCompletedModules(ctx context.Context, roomID uint) ([]int, error) {
	ret := m.Called(ctx, roomID)
	mods, _ := ret.Get(0).([]int)
	return mods, ret.Error(1)
}

func (m *ProgressRepository) DeleteRoomCompletions(ctx context.Context, roomID uint) error {
	return m.Called(ctx, roomID).Error(0)
}
