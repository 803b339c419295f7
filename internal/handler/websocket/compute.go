package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/service"
)

const computeWriteWait = 10 * time.Second

// StreamMessage 推送给客户端的消息。
// type 为 "task" 时带 record、tile 和 data (分块逃逸步数，按行存储)，
// "result" 时带 result，"error" 时带 error。
type StreamMessage struct {
	Type   string              `json:"type"`
	Record *compute.TaskRecord `json:"record,omitempty"`
	Tile   *compute.Tile       `json:"tile,omitempty"`
	Data   []uint16            `json:"data,omitempty"`
	Result *compute.Result     `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// ComputeStreamHandler 客户端发送一次参数，服务端每完成一个分块推送一条 task 消息，最后推送 result。
type ComputeStreamHandler struct {
	upgrader websocket.Upgrader
	compute  *service.ComputeService
}

func NewComputeStreamHandler(compute *service.ComputeService) *ComputeStreamHandler {
	if compute == nil {
		panic("ComputeService cannot be nil for ComputeStreamHandler")
	}
	return &ComputeStreamHandler{upgrader: newUpgrader(), compute: compute}
}

// HandleConnection GET /ws/compute
func (h *ComputeStreamHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("WS Compute: Failed to upgrade connection")
		return
	}
	defer conn.Close()
	logCtx := logrus.WithField("remote", conn.RemoteAddr().String())

	// 并发模式下 emit 从多个 worker 调用，写入需要串行
	var writeMu sync.Mutex
	write := func(msg StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(computeWriteWait))
		return conn.WriteJSON(msg)
	}

	// 1. 读取参数，缺省字段使用默认值
	p := compute.DefaultParams()
	_, raw, err := conn.ReadMessage()
	if err != nil {
		logCtx.WithError(err).Debug("WS Compute: client closed before sending params")
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			_ = write(StreamMessage{Type: "error", Error: "invalid parameters: " + err.Error()})
			return
		}
	}

	// 2. 运行并流式推送。客户端断开后停止推送，渲染在时间预算内自然结束
	var disconnected atomic.Bool
	res, err := h.compute.Run(p, func(rec compute.TaskRecord, tile compute.Tile, data []uint16) {
		if disconnected.Load() {
			return
		}
		if err := write(StreamMessage{Type: "task", Record: &rec, Tile: &tile, Data: data}); err != nil {
			disconnected.Store(true)
			logCtx.WithError(err).Debug("WS Compute: stop streaming after write error")
		}
	})
	if err != nil {
		_ = write(StreamMessage{Type: "error", Error: err.Error()})
		return
	}

	// 3. 最终结果
	if err := write(StreamMessage{Type: "result", Result: res}); err != nil {
		logCtx.WithError(err).Debug("WS Compute: failed to send result")
		return
	}
	writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
	writeMu.Unlock()
}
