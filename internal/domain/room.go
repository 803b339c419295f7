package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RoomCodeLength 房间码长度
const RoomCodeLength = 6

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

var (
	ErrInvalidRoomCode = errors.New("room code must be 6 alphanumeric characters")
	ErrEmptyRoomName   = errors.New("room name is required")
)

// RoomState 房间生命周期状态。
type RoomState string

const (
	RoomStateActive       RoomState = "ACTIVE"
	RoomStateResetPending RoomState = "RESET_PENDING" // 仅受保护房间 (demo) 的瞬时状态
	RoomStateDestroyed    RoomState = "DESTROYED"     // 终态，受保护房间永远不会进入
)

// Room 表示一个学习房间。成员在房间内共同完成六个模块。
type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"type:varchar(6);uniqueIndex:idx_room_code;not null" json:"room_code"`
	Name        string    `gorm:"type:varchar(191);not null" json:"name"`
	CreatorID   uint      `gorm:"index;not null" json:"created_by"` // demo 房间由系统创建，为 0
	IsProtected bool      `gorm:"not null;default:false" json:"is_protected"`
	Epoch       uint      `gorm:"not null;default:0" json:"epoch"` // 每次重置 +1
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

// NewRoom 校验房间码和名称后构造 Room。
func NewRoom(code, name string, creatorID uint) (*Room, error) {
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}
	return &Room{Code: code, Name: name, CreatorID: creatorID}, nil
}

// NormalizeRoomCode 去掉空白并转为大写，用户输入的房间码不区分大小写。
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidateRoomCode(code string) error {
	if !roomCodePattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomCode, code)
	}
	return nil
}

// RoomMember 房间成员关系。user_id 唯一：一个用户最多属于一个房间。
type RoomMember struct {
	RoomID   uint      `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserID   uint      `gorm:"primaryKey;autoIncrement:false;uniqueIndex:idx_room_members_user" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime;index" json:"joined_at"`
}

// RoomSummary 房间列表项，附带成员数。
type RoomSummary struct {
	Room
	MemberCount int64 `json:"member_count"`
}
