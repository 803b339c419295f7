package repository

import (
	"context"

	"parallel-quest/internal/domain"
)

// UserRepository 用户目录。用户本身由外部服务维护，这里只读写当前房间指针。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户，不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByIDs 批量查询用户，忽略不存在的 ID。
	FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error)

	// SetCurrentRoom 设置用户当前房间，roomID 为 nil 表示清空。
	SetCurrentRoom(ctx context.Context, userID uint, roomID *uint) error

	// ClearCurrentRoom 批量清空当前房间指针 (仅清空仍指向 roomID 的用户)。
	ClearCurrentRoom(ctx context.Context, roomID uint, userIDs []uint) error

	// FindWithDanglingRoom 查找 current_room_id 不为空但没有对应成员关系的用户。
	FindWithDanglingRoom(ctx context.Context) ([]domain.User, error)
}
