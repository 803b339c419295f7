package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现
type GormMembershipRepository struct {
	db *gorm.DB
}

func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// AddMember 依赖 (room_id, user_id) 主键和 user_id 唯一索引，冲突时什么都不做，
// 再查出冲突的是同一房间还是其他房间
func (r *GormMembershipRepository) AddMember(ctx context.Context, roomID, userID uint) (bool, error) {
	member := domain.RoomMember{RoomID: roomID, UserID: userID}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if result.Error != nil {
		return false, fmt.Errorf("gorm: add member (room %d, user %d): %w", roomID, userID, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var existing domain.RoomMember
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&existing).Error
	if err != nil {
		return false, fmt.Errorf("gorm: find membership of user %d: %w", userID, err)
	}
	if existing.RoomID != roomID {
		return false, repository.ErrMemberOfOtherRoom
	}
	return false, nil
}

func (r *GormMembershipRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.RoomMember{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove member (room %d, user %d): %w", roomID, userID, err)
	}
	return nil
}

func (r *GormMembershipRepository) ListMembers(ctx context.Context, roomID uint) ([]domain.RoomMember, error) {
	var members []domain.RoomMember
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("joined_at, user_id").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list members of room %d: %w", roomID, err)
	}
	return members, nil
}

func (r *GormMembershipRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.RoomMember{}).Error; err != nil {
		return fmt.Errorf("gorm: delete members of room %d: %w", roomID, err)
	}
	return nil
}
