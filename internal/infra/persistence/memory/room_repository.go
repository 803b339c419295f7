package memory

import (
	"context"
	"sort"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

type RoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) *RoomRepository {
	if db == nil {
		panic("memory DB cannot be nil for RoomRepository")
	}
	return &RoomRepository{db: db}
}

func (r *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	room, ok := r.db.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if room := r.findByCodeLocked(code); room != nil {
		cp := *room
		return &cp, nil
	}
	return nil, repository.ErrRoomNotFound
}

func (r *RoomRepository) findByCodeLocked(code string) *domain.Room {
	for _, room := range r.db.rooms {
		if room.Code == code {
			return room
		}
	}
	return nil
}

// Save 创建或更新房间，房间码唯一。
func (r *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if other := r.findByCodeLocked(room.Code); other != nil && other.ID != room.ID {
		return repository.ErrDuplicateEntry
	}
	now := r.db.now()
	if room.ID == 0 {
		r.db.nextRoomID++
		room.ID = r.db.nextRoomID
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	cp := *room
	r.db.rooms[room.ID] = &cp
	return nil
}

func (r *RoomRepository) ListWithMemberCount(ctx context.Context) ([]domain.RoomSummary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]domain.RoomSummary, 0, len(r.db.rooms))
	for _, room := range r.db.rooms {
		out = append(out, domain.RoomSummary{Room: *room, MemberCount: int64(len(r.db.members[room.ID]))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.findByCodeLocked(code) != nil, nil
}

func (r *RoomRepository) IncrementEpoch(ctx context.Context, id uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	room, ok := r.db.rooms[id]
	if !ok {
		return repository.ErrRoomNotFound
	}
	room.Epoch++
	room.UpdatedAt = r.db.now()
	return nil
}

func (r *RoomRepository) Delete(ctx context.Context, id uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.rooms[id]; !ok {
		return repository.ErrRoomNotFound
	}
	delete(r.db.rooms, id)
	return nil
}
