package domain

import "time"

// RoomEventType 房间进度事件类型。
type RoomEventType string

const (
	EventModuleCompleted RoomEventType = "module_completed" // 房间全员完成某模块
	EventRoomReset       RoomEventType = "room_reset"
	EventRoomDestroyed   RoomEventType = "room_destroyed"
	EventMemberJoined    RoomEventType = "member_joined"
	EventMemberLeft      RoomEventType = "member_left"
)

// RoomEvent 通过 Redis PubSub 推送给订阅者 (前端实时刷新房间进度)。
type RoomEvent struct {
	Type         RoomEventType `json:"type"`
	RoomID       uint          `json:"room_id"`
	UserID       uint          `json:"user_id,omitempty"`
	ModuleNumber int           `json:"module_number,omitempty"`
	Epoch        uint          `json:"epoch"`
	At           time.Time     `json:"at"`
}
