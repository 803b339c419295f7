package memory

import (
	"context"
	"time"
)

type ProgressRepository struct {
	db *DB
}

func NewProgressRepository(db *DB) *ProgressRepository {
	if db == nil {
		panic("memory DB cannot be nil for ProgressRepository")
	}
	return &ProgressRepository{db: db}
}

// insertIfAbsent 在持有写锁时调用
func insertIfAbsent(table map[uint]map[int]time.Time, key uint, module int, now time.Time) bool {
	row, ok := table[key]
	if !ok {
		row = make(map[int]time.Time)
		table[key] = row
	}
	if _, exists := row[module]; exists {
		return false
	}
	row[module] = now
	return true
}

func deleteIfPresent(table map[uint]map[int]time.Time, key uint, module int) bool {
	row, ok := table[key]
	if !ok {
		return false
	}
	if _, exists := row[module]; !exists {
		return false
	}
	delete(row, module)
	if len(row) == 0 {
		delete(table, key)
	}
	return true
}

func (r *ProgressRepository) InsertModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return insertIfAbsent(r.db.userProgress, userID, moduleNumber, r.db.now()), nil
}

func (r *ProgressRepository) DeleteModuleCompletion(ctx context.Context, userID uint, moduleNumber int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return deleteIfPresent(r.db.userProgress, userID, moduleNumber), nil
}

func (r *ProgressRepository) CompletedModules(ctx context.Context, userID uint) ([]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return sortedKeys(r.db.userProgress[userID]), nil
}

func (r *ProgressRepository) CountCompleted(ctx context.Context, userIDs []uint, moduleNumber int) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	seen := make(map[uint]struct{}, len(userIDs))
	var n int64
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := r.db.userProgress[id][moduleNumber]; ok {
			n++
		}
	}
	return n, nil
}

func (r *ProgressRepository) DeleteCompletionsForUsers(ctx context.Context, userIDs []uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range userIDs {
		delete(r.db.userProgress, id)
	}
	return nil
}

func (r *ProgressRepository) InsertRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return insertIfAbsent(r.db.roomProgress, roomID, moduleNumber, r.db.now()), nil
}

func (r *ProgressRepository) DeleteRoomCompletion(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return deleteIfPresent(r.db.roomProgress, roomID, moduleNumber), nil
}

func (r *ProgressRepository) RoomCompletedModules(ctx context.Context, roomID uint) ([]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return sortedKeys(r.db.roomProgress[roomID]), nil
}

func (r *ProgressRepository) DeleteRoomCompletions(ctx context.Context, roomID uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.roomProgress, roomID)
	return nil
}
