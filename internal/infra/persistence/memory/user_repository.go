package memory

import (
	"context"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	if db == nil {
		panic("memory DB cannot be nil for UserRepository")
	}
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	cp.CurrentRoomID = copyUintPtr(u.CurrentRoomID)
	return &cp, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok {
			cp := *u
			cp.CurrentRoomID = copyUintPtr(u.CurrentRoomID)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *UserRepository) SetCurrentRoom(ctx context.Context, userID uint, roomID *uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.CurrentRoomID = copyUintPtr(roomID)
	u.UpdatedAt = r.db.now()
	return nil
}

func (r *UserRepository) ClearCurrentRoom(ctx context.Context, roomID uint, userIDs []uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range userIDs {
		if u, ok := r.db.users[id]; ok && u.InRoom(roomID) {
			u.CurrentRoomID = nil
			u.UpdatedAt = r.db.now()
		}
	}
	return nil
}

func (r *UserRepository) FindWithDanglingRoom(ctx context.Context) ([]domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.User
	for _, u := range r.db.users {
		if u.CurrentRoomID == nil {
			continue
		}
		if !r.db.isMemberLocked(*u.CurrentRoomID, u.ID) {
			cp := *u
			cp.CurrentRoomID = copyUintPtr(u.CurrentRoomID)
			out = append(out, cp)
		}
	}
	return out, nil
}
