package repository

import (
	"context"
)

// ProgressRepository 个人模块完成记录和房间模块完成记录。
// 两类插入都必须是原子的 "不存在才插入"，依赖唯一约束而不是先查后写。
type ProgressRepository interface {
	// === 个人进度 (user_progress) ===

	// InsertModuleCompletion 记录用户完成模块。已存在时 created=false，不返回错误。
	InsertModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (created bool, err error)

	// DeleteModuleCompletion 删除单条个人完成记录 (管理员切换用)。
	DeleteModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (deleted bool, err error)

	// CompletedModules 返回用户已完成的模块编号，升序。
	CompletedModules(ctx context.Context, userID uint) ([]int, error)

	// CountCompleted 统计 userIDs 中完成了指定模块的不同用户数。
	CountCompleted(ctx context.Context, userIDs []uint, moduleNumber int) (int64, error)

	// DeleteCompletionsForUsers 删除这些用户的全部个人完成记录。
	DeleteCompletionsForUsers(ctx context.Context, userIDs []uint) error

	// === 房间进度 (room_progress) ===

	// InsertRoomCompletion 标记房间完成模块。已存在时 created=false，不返回错误。
	InsertRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (created bool, err error)

	// DeleteRoomCompletion 删除房间某个模块的完成标记。
	DeleteRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (deleted bool, err error)

	// RoomCompletedModules 返回房间已完成的不同模块编号，升序。
	RoomCompletedModules(ctx context.Context, roomID uint) ([]int, error)

	// DeleteRoomCompletions 删除房间的全部模块完成标记。
	DeleteRoomCompletions(ctx context.Context, roomID uint) error
}
