package memory

import (
	"context"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

type MembershipRepository struct {
	db *DB
}

func NewMembershipRepository(db *DB) *MembershipRepository {
	if db == nil {
		panic("memory DB cannot be nil for MembershipRepository")
	}
	return &MembershipRepository{db: db}
}

func (db *DB) isMemberLocked(roomID, userID uint) bool {
	for _, m := range db.members[roomID] {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (r *MembershipRepository) AddMember(ctx context.Context, roomID, userID uint) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.isMemberLocked(roomID, userID) {
		return false, nil
	}
	for other := range r.db.members {
		if other != roomID && r.db.isMemberLocked(other, userID) {
			return false, repository.ErrMemberOfOtherRoom
		}
	}
	r.db.members[roomID] = append(r.db.members[roomID], domain.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: r.db.now(),
	})
	return true, nil
}

func (r *MembershipRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	list := r.db.members[roomID]
	for i, m := range list {
		if m.UserID == userID {
			r.db.members[roomID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.db.members[roomID]) == 0 {
		delete(r.db.members, roomID)
	}
	return nil
}

func (r *MembershipRepository) ListMembers(ctx context.Context, roomID uint) ([]domain.RoomMember, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	list := r.db.members[roomID]
	out := make([]domain.RoomMember, len(list))
	copy(out, list)
	return out, nil
}

func (r *MembershipRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.members, roomID)
	return nil
}
