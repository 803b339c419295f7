package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送控制帧，消息上限很小
	maxMessageSize = 512
)

// HubMessage Hub 内部通道传递的消息
type HubMessage struct {
	Type    string // "register", "unregister", "broadcast", "direct"
	RoomID  uint
	Client  *Client // register/unregister/direct
	RawData []byte  // broadcast/direct 的消息内容
}

// StatsFunc 新客户端注册时获取房间当前统计，作为第一条消息发送
type StatsFunc func(ctx context.Context, roomID uint) (*domain.RoomStats, error)

// Hub 维护订阅房间事件的 WebSocket 客户端，并把房间事件推送给它们。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	stats StatsFunc
	log   *logrus.Entry

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub 创建 Hub。stats 可以为 nil。
func NewHub(stats StatsFunc) *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
		stats:       stats,
		log:         logrus.WithField("component", "hub"),
		done:        make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	h.log.Info("Hub is running...")
	for {
		var msg HubMessage
		select {
		case <-h.done:
			h.log.Info("Hub is shutting down...")
			return
		case msg = <-h.messageChan:
		}
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "broadcast":
			h.broadcast(msg.RoomID, msg.RawData)
		case "direct":
			h.sendDirect(msg.Client, msg.RawData)
		default:
			h.log.Warnf("Hub: Received unknown message type: %s for room %d", msg.Type, msg.RoomID)
		}
	}
}

// Stop 让 Run 返回，之后的消息全部丢弃。可以重复调用。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// QueueMessage 非阻塞地把消息放入 Hub 通道，通道已满或 Hub 已停止时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		return false
	}
}

// PublishRoomEvent 直接在本进程内广播事件，没有 Redis 时作为 EventPublisher 使用。
func (h *Hub) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if !h.QueueMessage(HubMessage{Type: "broadcast", RoomID: event.RoomID, RawData: payload}) {
		h.log.WithField("room_id", event.RoomID).Warn("Hub message channel full, dropping room event")
	}
	return nil
}

// RelayRedis 订阅 Redis 房间事件频道 (pattern 形如 "pq:room:*:events") 并转发给本地客户端。
// 多实例部署时每个实例都运行一个 relay。ctx 取消后返回。
func (h *Hub) RelayRedis(ctx context.Context, client *redis.Client, pattern string) {
	pubsub := client.PSubscribe(ctx, pattern)
	defer pubsub.Close()
	h.log.WithField("pattern", pattern).Info("Relaying room events from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.log.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed room event")
				continue
			}
			if !h.QueueMessage(HubMessage{Type: "broadcast", RoomID: event.RoomID, RawData: []byte(msg.Payload)}) {
				h.log.WithField("room_id", event.RoomID).Warn("Hub message channel full, dropping room event")
			}
		}
	}
}

// ClientCount 房间内已注册的客户端数量
func (h *Hub) ClientCount(roomID uint) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": client.UserID()})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	if h.stats != nil {
		go h.sendInitialStats(client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	roomID := client.RoomID()
	logCtx := h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": client.UserID()})

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := roomClients[client]; !ok {
		return
	}
	delete(roomClients, client)
	// 关闭 send 通道，WritePump 随之退出
	close(client.send)
	if len(roomClients) == 0 {
		delete(h.rooms, roomID)
	}
	logCtx.Info("Client unregistered from Hub")
}

// broadcast 在 Hub 主循环中执行，发送通道满的客户端被断开
func (h *Hub) broadcast(roomID uint, payload []byte) {
	h.roomsMu.RLock()
	var slow []*Client
	for client := range h.rooms[roomID] {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range slow {
		h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": client.UserID()}).Warn("Client send buffer full, disconnecting")
		h.unregisterClient(client)
	}
}

// sendInitialStats 异步获取并发送房间统计给新连接的客户端
func (h *Hub) sendInitialStats(client *Client) {
	logCtx := h.log.WithFields(logrus.Fields{"room_id": client.RoomID(), "user_id": client.UserID()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := h.stats(ctx, client.RoomID())
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load room stats for new client")
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":  "stats",
		"stats": stats,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal stats message")
		return
	}
	h.QueueMessage(HubMessage{Type: "direct", RoomID: client.RoomID(), Client: client, RawData: payload})
}

// sendDirect 只在客户端仍然注册时发送
func (h *Hub) sendDirect(client *Client, payload []byte) {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	if !h.rooms[client.RoomID()][client] {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}
