package repository

import (
	"context"

	"parallel-quest/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByCode 根据房间码查找房间，不存在时返回 ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 创建或更新房间。房间码冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, room *domain.Room) error

	// ListWithMemberCount 按创建时间倒序列出所有房间及成员数。
	ListWithMemberCount(ctx context.Context) ([]domain.RoomSummary, error)

	// IsCodeExists 检查房间码是否已被占用。
	IsCodeExists(ctx context.Context, code string) (bool, error)

	// IncrementEpoch 将房间纪元加一 (重置时调用)。
	IncrementEpoch(ctx context.Context, id uint) error

	// Delete 删除房间记录本身，不处理关联数据。
	Delete(ctx context.Context, id uint) error
}
