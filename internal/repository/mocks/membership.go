package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var _ repository.MembershipRepository = (*MembershipRepository)(nil)

// MembershipRepository repository.MembershipRepository 的 testify mock
type MembershipRepository struct {
	mock.Mock
}

func (m *MembershipRepository) AddMember(ctx context.Context, roomID, userID uint) (bool, error) {
	ret := m.Called(ctx, roomID, userID)
	return ret.Bool(0), ret.Error(1)
}

func (m *MembershipRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	return m.Called(ctx, roomID, userID).Error(0)
}

func (m *MembershipRepository) ListMembers(ctx context.Context, roomID uint) ([]domain.RoomMember, error) {
	ret := m.Called(ctx, roomID)
	members, _ := ret.Get(0).([]domain.RoomMember)
	return members, ret.Error(1)
}

func (m *MembershipRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	return m.Called(ctx, roomID).Error(0)
}
