package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/service"
)

// RoomHandler 房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
	lifecycle   *service.LifecycleService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, lifecycle *service.LifecycleService) *RoomHandler {
	if roomService == nil || lifecycle == nil {
		panic("services cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, lifecycle: lifecycle}
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,max=191"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

type BulkDeleteRequest struct {
	RoomIDs []uint `json:"room_ids" binding:"required,min=1"`
}

// ListRooms GET /api/rooms
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom POST /api/rooms (管理员)
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    room,
	})
}

// JoinRoom POST /api/rooms/join
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: room_code is required")
		return
	}

	res, err := h.roomService.JoinRoom(c.Request.Context(), userID, req.RoomCode)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.JoinRoom: Failed to join room")
		HandleServiceError(c, err)
		return
	}
	msg := "Joined room successfully"
	if !res.Joined {
		msg = "Already a member of this room"
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": msg, "room": res.Room})
}

// GetRoom GET /api/rooms/:id
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	room, err := h.roomService.FindRoomByID(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	stats, err := h.roomService.Stats(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"room": room, "stats": stats})
}

// LeaveRoom POST /api/rooms/:id/leave
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.roomService.LeaveRoom(c.Request.Context(), roomID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Left room successfully"})
}

// Members GET /api/rooms/:id/members
func (h *RoomHandler) Members(c *gin.Context) {
	roomID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	members, err := h.roomService.Members(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"members": members})
}

// Progress GET /api/rooms/:id/progress
func (h *RoomHandler) Progress(c *gin.Context) {
	roomID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.roomService.Stats(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"total_modules":     domain.TotalModules,
		"total_members":     stats.TotalMembers,
		"completed_modules": stats.CompletedModules,
		"member_progress":   stats.MemberProgress,
		"epoch":             stats.Epoch,
	})
}

// DeleteRoom DELETE /api/rooms/:id (管理员)
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.lifecycle.DeleteRoom(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

// BulkDelete POST /api/rooms/bulk-delete (管理员)
// 总是返回 200，每个房间的结果在 deleted/protected/failed 中。
func (h *RoomHandler) BulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: room_ids must be a non-empty list")
		return
	}
	res := h.lifecycle.BulkDelete(c.Request.Context(), req.RoomIDs)
	SuccessResponse(c, http.StatusOK, res)
}
