// Package memory 提供仓库接口的内存实现，用于本地开发 (STORAGE_DRIVER=memory) 和测试。
// 唯一约束通过同一把锁内的集合检查保证，语义与数据库唯一索引一致。
package memory

import (
	"sort"
	"sync"
	"time"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

var (
	_ repository.RoomRepository       = (*RoomRepository)(nil)
	_ repository.UserRepository       = (*UserRepository)(nil)
	_ repository.MembershipRepository = (*MembershipRepository)(nil)
	_ repository.ProgressRepository   = (*ProgressRepository)(nil)
)

type DB struct {
	mu sync.RWMutex

	rooms      map[uint]*domain.Room
	nextRoomID uint

	users map[uint]*domain.User

	// room_id -> 按加入顺序排列的成员
	members map[uint][]domain.RoomMember

	// user_id -> module_number -> completed_at
	userProgress map[uint]map[int]time.Time
	// room_id -> module_number -> completed_at
	roomProgress map[uint]map[int]time.Time

	now func() time.Time
}

func Open() *DB {
	return &DB{
		rooms:        make(map[uint]*domain.Room),
		users:        make(map[uint]*domain.User),
		members:      make(map[uint][]domain.RoomMember),
		userProgress: make(map[uint]map[int]time.Time),
		roomProgress: make(map[uint]map[int]time.Time),
		now:          time.Now,
	}
}

// PutUser 写入用户目录。用户由外部认证服务创建，内存模式下通过它预置。
func (db *DB) PutUser(u domain.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = db.now()
	}
	db.users[u.ID] = &u
}

func sortedKeys(m map[int]time.Time) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func copyUintPtr(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
