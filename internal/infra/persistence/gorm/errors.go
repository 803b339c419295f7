package gormpersistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"parallel-quest/internal/repository"
)

var (
	_ repository.RoomRepository       = (*GormRoomRepository)(nil)
	_ repository.UserRepository       = (*GormUserRepository)(nil)
	_ repository.MembershipRepository = (*GormMembershipRepository)(nil)
	_ repository.ProgressRepository   = (*GormProgressRepository)(nil)
)

// isDuplicateEntryError 判断是否违反唯一约束。优先检查 MySQL 错误码 1062，
// 其他驱动退回到错误字符串匹配。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "Duplicate entry") || // MySQL
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
