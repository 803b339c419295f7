package websocket

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/hub"
	"parallel-quest/internal/middleware"
	"parallel-quest/internal/service"
)

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// 跨域由 CORS 中间件和 JWT 保护
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// RoomEventsHandler 把客户端注册到 Hub，接收房间进度事件
type RoomEventsHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewRoomEventsHandler 创建 RoomEventsHandler 实例
func NewRoomEventsHandler(h *hub.Hub, roomService *service.RoomService) *RoomEventsHandler {
	if h == nil {
		panic("Hub cannot be nil for RoomEventsHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for RoomEventsHandler")
	}
	return &RoomEventsHandler{upgrader: newUpgrader(), hub: h, roomService: roomService}
}

// HandleConnection GET /ws/rooms/:roomId
func (h *RoomEventsHandler) HandleConnection(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)
	logCtx := logrus.WithField("user_id", userID)

	// 1. 解析房间 ID
	roomIDUint64, err := strconv.ParseUint(c.Param("roomId"), 10, 32)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: Invalid room ID format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID format"})
		return
	}
	roomID := uint(roomIDUint64)
	logCtx = logCtx.WithField("room_id", roomID)

	// 2. 升级之前验证房间存在
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: Error checking room existence")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate room"})
		}
		return
	}

	// 3. 升级连接。Upgrade 失败时已写入 HTTP 错误
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	// 4. 注册到 Hub 并启动读写 goroutine
	client := hub.NewClient(h.hub, conn, roomID, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", RoomID: roomID, Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	go client.Run()
	logCtx.Info("WS Handler: Client subscribed to room events")
}
