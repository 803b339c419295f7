package service_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/infra/persistence/memory"
	"parallel-quest/internal/service"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// recordingPublisher 记录发布的事件，供断言使用
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (p *recordingPublisher) PublishRoomEvent(ctx context.Context, event domain.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(t domain.RoomEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// fixture 基于内存存储的完整服务组合
type fixture struct {
	db       *memory.DB
	rooms    *memory.RoomRepository
	members  *memory.MembershipRepository
	users    *memory.UserRepository
	progress *memory.ProgressRepository
	events   *recordingPublisher

	lifecycle   *service.LifecycleService
	progressSvc *service.ProgressService
	roomSvc     *service.RoomService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.Open()
	f := &fixture{
		db:       db,
		rooms:    memory.NewRoomRepository(db),
		members:  memory.NewMembershipRepository(db),
		users:    memory.NewUserRepository(db),
		progress: memory.NewProgressRepository(db),
		events:   &recordingPublisher{},
	}
	f.lifecycle = service.NewLifecycleService(f.rooms, f.members, f.users, f.progress, f.events)
	f.progressSvc = service.NewProgressService(f.users, f.members, f.progress, f.lifecycle, f.events)
	f.roomSvc = service.NewRoomService(f.rooms, f.members, f.users, f.progress, f.lifecycle, f.events)
	return f
}

// seedRoom 创建房间并把 memberIDs 加入房间 (用户不存在时自动创建)
func (f *fixture) seedRoom(t *testing.T, code string, protected bool, memberIDs ...uint) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room := &domain.Room{Code: code, Name: "room " + code, IsProtected: protected}
	require.NoError(t, f.rooms.Save(ctx, room))
	for _, id := range memberIDs {
		f.seedUser(id)
		_, err := f.members.AddMember(ctx, room.ID, id)
		require.NoError(t, err)
		require.NoError(t, f.users.SetCurrentRoom(ctx, id, &room.ID))
	}
	return room
}

func (f *fixture) seedUser(id uint) {
	if _, err := f.users.FindByID(context.Background(), id); err == nil {
		return
	}
	f.db.PutUser(domain.User{ID: id, Username: usernameOf(id), Role: domain.RoleStudent})
}

// completeAll 让 memberIDs 依次完成 modules
func (f *fixture) completeAll(t *testing.T, roomID uint, memberIDs []uint, modules ...int) {
	t.Helper()
	for _, m := range modules {
		for _, id := range memberIDs {
			_, err := f.progressSvc.RecordCompletion(context.Background(), roomID, id, m)
			require.NoError(t, err)
		}
	}
}

func usernameOf(id uint) string {
	return fmt.Sprintf("student%d", id)
}
