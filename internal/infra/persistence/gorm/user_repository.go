package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GormUserRepository 实例
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByID 根据用户 ID 查找用户
func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id %d: %w", id, err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	var users []domain.User
	if len(ids) == 0 {
		return users, nil // 避免空的 IN 查询
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("gorm: find users by ids: %w", err)
	}
	return users, nil
}

func (r *GormUserRepository) SetCurrentRoom(ctx context.Context, userID uint, roomID *uint) error {
	var value interface{}
	if roomID != nil {
		value = *roomID
	}
	result := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Update("current_room_id", value)
	if result.Error != nil {
		return fmt.Errorf("gorm: set current room for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// ClearCurrentRoom 只清空仍指向该房间的指针，避免覆盖用户已切换的新房间
func (r *GormUserRepository) ClearCurrentRoom(ctx context.Context, roomID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id IN ? AND current_room_id = ?", userIDs, roomID).
		Update("current_room_id", nil).Error
	if err != nil {
		return fmt.Errorf("gorm: clear current room %d for %d users: %w", roomID, len(userIDs), err)
	}
	return nil
}

func (r *GormUserRepository) FindWithDanglingRoom(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("current_room_id IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM room_members rm WHERE rm.user_id = users.id AND rm.room_id = users.current_room_id)").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find users with dangling room pointer: %w", err)
	}
	return users, nil
}
