package repository

import (
	"context"

	"parallel-quest/internal/domain"
)

// MembershipRepository 房间成员关系。
type MembershipRepository interface {
	// AddMember 插入成员关系 (已存在则忽略)。created 表示本次是否真正插入。
	// 用户已经属于其他房间时返回 ErrMemberOfOtherRoom。
	AddMember(ctx context.Context, roomID, userID uint) (created bool, err error)

	// RemoveMember 删除成员关系，不存在时不报错。
	RemoveMember(ctx context.Context, roomID, userID uint) error

	// ListMembers 按加入时间顺序返回房间成员。
	ListMembers(ctx context.Context, roomID uint) ([]domain.RoomMember, error)

	// DeleteByRoom 删除房间的全部成员关系。
	DeleteByRoom(ctx context.Context, roomID uint) error
}
