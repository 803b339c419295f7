package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TotalModules 固定的学习模块数量，编号 1..6。
const TotalModules = 6

var ErrInvalidModuleNumber = fmt.Errorf("module number must be between 1 and %d", TotalModules)

// ValidateModuleNumber 检查模块编号是否在 [1, TotalModules] 范围内。
func ValidateModuleNumber(moduleNumber int) error {
	if moduleNumber < 1 || moduleNumber > TotalModules {
		return fmt.Errorf("%w: got %d", ErrInvalidModuleNumber, moduleNumber)
	}
	return nil
}

// IsInvalidModule 判断错误是否来自模块编号校验。
func IsInvalidModule(err error) bool {
	return errors.Is(err, ErrInvalidModuleNumber)
}

// ModuleCompletion 单个用户完成某个模块的记录，(user_id, module_number) 唯一。
type ModuleCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_user_module" json:"user_id"`
	ModuleNumber int       `gorm:"not null;uniqueIndex:idx_user_module" json:"module_number"`
	CompletedAt  time.Time `gorm:"autoCreateTime" json:"completed_at"`
}

func (ModuleCompletion) TableName() string {
	return "user_progress"
}

func NewModuleCompletion(userID uint, moduleNumber int) (*ModuleCompletion, error) {
	if err := ValidateModuleNumber(moduleNumber); err != nil {
		return nil, err
	}
	return &ModuleCompletion{UserID: userID, ModuleNumber: moduleNumber}, nil
}

// RoomModuleCompletion 表示房间全部现有成员都完成了某个模块，(room_id, module_number) 唯一。
// 每个房间纪元 (epoch) 内每个模块只会创建一次。
type RoomModuleCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	RoomID       uint      `gorm:"not null;uniqueIndex:idx_room_module" json:"room_id"`
	ModuleNumber int       `gorm:"not null;uniqueIndex:idx_room_module" json:"module_number"`
	CompletedAt  time.Time `gorm:"autoCreateTime" json:"completed_at"`
}

func (RoomModuleCompletion) TableName() string {
	return "room_progress"
}

func NewRoomModuleCompletion(roomID uint, moduleNumber int) (*RoomModuleCompletion, error) {
	if err := ValidateModuleNumber(moduleNumber); err != nil {
		return nil, err
	}
	return &RoomModuleCompletion{RoomID: roomID, ModuleNumber: moduleNumber}, nil
}

// ProgressPercentage 按已完成模块数计算百分比，保留两位小数。
func ProgressPercentage(completed int) float64 {
	pct := float64(completed) / float64(TotalModules) * 100
	return math.Round(pct*100) / 100
}

// MemberProgress 房间内单个成员的进度。
type MemberProgress struct {
	UserID           uint   `json:"id"`
	Username         string `json:"username"`
	CompletedModules []int  `json:"completed_modules"`
}

// RoomStats 房间统计信息。
type RoomStats struct {
	TotalMembers     int              `json:"total_members"`
	CompletedModules []int            `json:"completed_modules"`
	MemberProgress   []MemberProgress `json:"member_progress"`
	Epoch            uint             `json:"epoch"`
}
