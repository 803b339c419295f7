package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parallel-quest/internal/domain"
)

// GormProgressRepository 是 ProgressRepository 接口的 GORM 实现。
// 两个 Insert 方法使用 ON CONFLICT DO NOTHING (MySQL 下为 ON DUPLICATE KEY UPDATE)，
// 通过 RowsAffected 判断是否真正插入，并发调用时只有一个调用方得到 created=true。
type GormProgressRepository struct {
	db *gorm.DB
}

func NewGormProgressRepository(db *gorm.DB) *GormProgressRepository {
	if db == nil {
		panic("database connection cannot be nil for GormProgressRepository")
	}
	return &GormProgressRepository{db: db}
}

func (r *GormProgressRepository) InsertModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	row, err := domain.NewModuleCompletion(userID, moduleNumber)
	if err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		if isDuplicateEntryError(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("gorm: insert module completion (user %d, module %d): %w", userID, moduleNumber, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormProgressRepository) DeleteModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND module_number = ?", userID, moduleNumber).
		Delete(&domain.ModuleCompletion{})
	if result.Error != nil {
		return false, fmt.Errorf("gorm: delete module completion (user %d, module %d): %w", userID, moduleNumber, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormProgressRepository) CompletedModules(ctx context.Context, userID uint) ([]int, error) {
	modules := []int{}
	err := r.db.WithContext(ctx).Model(&domain.ModuleCompletion{}).
		Where("user_id = ?", userID).
		Order("module_number").
		Pluck("module_number", &modules).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: completed modules of user %d: %w", userID, err)
	}
	return modules, nil
}

func (r *GormProgressRepository) CountCompleted(ctx context.Context, userIDs []uint, moduleNumber int) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ModuleCompletion{}).
		Where("user_id IN ? AND module_number = ?", userIDs, moduleNumber).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count completions of module %d: %w", moduleNumber, err)
	}
	return count, nil
}

func (r *GormProgressRepository) DeleteCompletionsForUsers(ctx context.Context, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Delete(&domain.ModuleCompletion{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete completions for %d users: %w", len(userIDs), err)
	}
	return nil
}

func (r *GormProgressRepository) InsertRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	row, err := domain.NewRoomModuleCompletion(roomID, moduleNumber)
	if err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		if isDuplicateEntryError(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("gorm: insert room completion (room %d, module %d): %w", roomID, moduleNumber, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormProgressRepository) DeleteRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND module_number = ?", roomID, moduleNumber).
		Delete(&domain.RoomModuleCompletion{})
	if result.Error != nil {
		return false, fmt.Errorf("gorm: delete room completion (room %d, module %d): %w", roomID, moduleNumber, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormProgressRepository) RoomCompletedModules(ctx context.Context, roomID uint) ([]int, error) {
	modules := []int{}
	err := r.db.WithContext(ctx).Model(&domain.RoomModuleCompletion{}).
		Where("room_id = ?", roomID).
		Distinct().
		Order("module_number").
		Pluck("module_number", &modules).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: completed modules of room %d: %w", roomID, err)
	}
	return modules, nil
}

func (r *GormProgressRepository) DeleteRoomCompletions(ctx context.Context, roomID uint) error {
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.RoomModuleCompletion{}).Error; err != nil {
		return fmt.Errorf("gorm: delete completions of room %d: %w", roomID, err)
	}
	return nil
}
