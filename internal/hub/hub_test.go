package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/domain"
)

func register(t *testing.T, h *Hub, roomID, userID uint) *Client {
	t.Helper()
	c := NewClient(h, nil, roomID, userID) // pumps 未启动，不需要连接
	before := h.ClientCount(roomID)
	require.True(t, h.QueueMessage(HubMessage{Type: "register", RoomID: roomID, Client: c}))
	require.Eventually(t, func() bool { return h.ClientCount(roomID) == before+1 }, time.Second, 5*time.Millisecond)
	return c
}

func TestHub_BroadcastOnlyToRoom(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	inRoom := register(t, h, 1, 10)
	otherRoom := register(t, h, 2, 20)

	event := domain.RoomEvent{Type: domain.EventModuleCompleted, RoomID: 1, ModuleNumber: 3}
	require.NoError(t, h.PublishRoomEvent(context.Background(), event))

	select {
	case raw := <-inRoom.send:
		var got domain.RoomEvent
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, domain.EventModuleCompleted, got.Type)
		assert.Equal(t, 3, got.ModuleNumber)
	case <-time.After(time.Second):
		t.Fatal("事件没有送达房间内的客户端")
	}

	select {
	case <-otherRoom.send:
		t.Fatal("其他房间不应收到事件")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	c := register(t, h, 5, 1)
	require.True(t, h.QueueMessage(HubMessage{Type: "unregister", RoomID: 5, Client: c}))

	require.Eventually(t, func() bool { return h.ClientCount(5) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok, "send 通道应被关闭")
}

func TestHub_SendsInitialStats(t *testing.T) {
	h := NewHub(func(ctx context.Context, roomID uint) (*domain.RoomStats, error) {
		return &domain.RoomStats{TotalMembers: 2, CompletedModules: []int{1}, Epoch: 4}, nil
	})
	go h.Run()
	defer h.Stop()

	c := register(t, h, 9, 1)
	select {
	case raw := <-c.send:
		var msg struct {
			Type  string           `json:"type"`
			Stats domain.RoomStats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "stats", msg.Type)
		assert.Equal(t, uint(4), msg.Stats.Epoch)
	case <-time.After(time.Second):
		t.Fatal("没有收到初始统计")
	}
}

func TestHub_QueueAfterStop(t *testing.T) {
	h := NewHub(nil)
	h.Stop()
	h.Stop()

	assert.False(t, h.QueueMessage(HubMessage{Type: "broadcast", RoomID: 1}))
	assert.NoError(t, h.PublishRoomEvent(context.Background(), domain.RoomEvent{Type: domain.EventMemberJoined, RoomID: 1}))
}
