package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"parallel-quest/internal/domain"
)

// MigrateDB 迁移全部表结构。唯一索引 (room code, user/module, room/module)
// 是进度聚合并发正确性的前提，迁移后逐一检查。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.RoomMember{},
		&domain.ModuleCompletion{},
		&domain.RoomModuleCompletion{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	required := []struct {
		model interface{}
		index string
	}{
		{&domain.Room{}, "idx_room_code"},
		{&domain.ModuleCompletion{}, "idx_user_module"},
		{&domain.RoomModuleCompletion{}, "idx_room_module"},
	}
	for _, r := range required {
		if !db.Migrator().HasIndex(r.model, r.index) {
			return fmt.Errorf("unique index %s missing after migration", r.index)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
