package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByCode 根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Save 保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Save(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", room.ID, room.Code, err)
	}
	return nil
}

// ListWithMemberCount 列出所有房间，附带成员数，按创建时间倒序
func (r *GormRoomRepository) ListWithMemberCount(ctx context.Context) ([]domain.RoomSummary, error) {
	var rooms []domain.RoomSummary
	err := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Select("rooms.*, (SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = rooms.id) AS member_count").
		Order("rooms.created_at DESC").
		Scan(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms with member count: %w", err)
	}
	return rooms, nil
}

// IsCodeExists 检查房间码是否存在
func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

func (r *GormRoomRepository) IncrementEpoch(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", id).
		UpdateColumn("epoch", gorm.Expr("epoch + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("gorm: increment epoch for room %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

func (r *GormRoomRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Room{}, id)
	if result.Error != nil {
		return fmt.Errorf("gorm: delete room %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}
