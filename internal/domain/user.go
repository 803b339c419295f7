package domain

import "time"

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User 表示平台用户。账号由外部认证服务创建，这里只维护当前房间指针。
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Email         string    `gorm:"type:varchar(191)" json:"email,omitempty"`
	Role          string    `gorm:"type:varchar(32);not null;default:student" json:"role"`
	CurrentRoomID *uint     `gorm:"index" json:"current_room_id"` // 同一时间最多属于一个房间
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// InRoom 判断用户当前是否在指定房间。
func (u *User) InRoom(roomID uint) bool {
	return u.CurrentRoomID != nil && *u.CurrentRoomID == roomID
}
