package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// Transition CompleteRoom 的结果。
type Transition string

const (
	TransitionNone      Transition = "none"      // 条件不再成立，或其他调用者已经处理了本纪元
	TransitionReset     Transition = "reset"     // 受保护房间被重置
	TransitionDestroyed Transition = "destroyed" // 普通房间被销毁
)

// BulkDeleteFailure 批量删除中失败的单个房间。
type BulkDeleteFailure struct {
	RoomID uint   `json:"room_id"`
	Error  string `json:"error"`
}

// BulkDeleteResult 每个请求的房间 ID 恰好出现在其中一个列表里。
type BulkDeleteResult struct {
	Deleted   []uint              `json:"deleted"`
	Protected []uint              `json:"protected"`
	Failed    []BulkDeleteFailure `json:"failed"`
}

// LifecycleService 房间完成后的重置/销毁，以及管理员删除。
// 同一房间的所有状态转换都在房间锁内串行执行。
type LifecycleService struct {
	rooms    repository.RoomRepository
	members  repository.MembershipRepository
	users    repository.UserRepository
	progress repository.ProgressRepository
	events   notifier
	locks    *keyedLocks
}

// NewLifecycleService 创建 LifecycleService。events 可以为 nil。
func NewLifecycleService(
	rooms repository.RoomRepository,
	members repository.MembershipRepository,
	users repository.UserRepository,
	progress repository.ProgressRepository,
	events repository.EventPublisher,
) *LifecycleService {
	if rooms == nil || members == nil || users == nil || progress == nil {
		panic("repositories cannot be nil for LifecycleService")
	}
	return &LifecycleService{
		rooms:    rooms,
		members:  members,
		users:    users,
		progress: progress,
		events:   notifier{pub: events},
		locks:    newKeyedLocks(),
	}
}

// CompleteRoom 在房间六个模块都已完成时调用。
// 在锁内重新确认条件，保证每个纪元只执行一次重置或销毁；后到的调用者得到 TransitionNone。
func (s *LifecycleService) CompleteRoom(ctx context.Context, roomID uint) (Transition, error) {
	logCtx := logrus.WithField("room_id", roomID)

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			// 已被并发调用者销毁
			logCtx.Debug("CompleteRoom: room already gone")
			return TransitionNone, nil
		}
		return TransitionNone, mapRepoError("find room", err)
	}

	mods, err := s.progress.RoomCompletedModules(ctx, roomID)
	if err != nil {
		return TransitionNone, mapRepoError("list room completions", err)
	}
	if len(mods) < domain.TotalModules {
		logCtx.WithField("completed", len(mods)).Debug("CompleteRoom: room no longer complete")
		return TransitionNone, nil
	}

	if room.IsProtected {
		if err := s.resetLocked(ctx, room); err != nil {
			return TransitionNone, err
		}
		return TransitionReset, nil
	}
	if err := s.destroyLocked(ctx, room); err != nil {
		return TransitionNone, err
	}
	return TransitionDestroyed, nil
}

// DeleteRoom 管理员删除房间。受保护房间返回 ErrProtectedRoom 且不做任何修改。
func (s *LifecycleService) DeleteRoom(ctx context.Context, roomID uint) error {
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return mapRepoError("find room", err)
	}
	if room.IsProtected {
		logrus.WithField("room_id", roomID).Warn("Refused to delete protected room")
		return ErrProtectedRoom
	}
	return s.destroyLocked(ctx, room)
}

// BulkDelete 逐个删除房间，单个失败不会中止其余房间。
func (s *LifecycleService) BulkDelete(ctx context.Context, roomIDs []uint) *BulkDeleteResult {
	res := &BulkDeleteResult{
		Deleted:   []uint{},
		Protected: []uint{},
		Failed:    []BulkDeleteFailure{},
	}
	for _, id := range roomIDs {
		err := s.DeleteRoom(ctx, id)
		switch {
		case err == nil:
			res.Deleted = append(res.Deleted, id)
		case errors.Is(err, ErrProtectedRoom):
			res.Protected = append(res.Protected, id)
		default:
			res.Failed = append(res.Failed, BulkDeleteFailure{RoomID: id, Error: err.Error()})
		}
	}
	logrus.WithFields(logrus.Fields{
		"requested": len(roomIDs),
		"deleted":   len(res.Deleted),
		"protected": len(res.Protected),
		"failed":    len(res.Failed),
	}).Info("Bulk room delete finished")
	return res
}

// resetLocked 清空房间和全体成员的进度，成员关系保留，纪元 +1。调用方持有房间锁。
func (s *LifecycleService) resetLocked(ctx context.Context, room *domain.Room) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": room.ID, "epoch": room.Epoch})
	logCtx.WithField("state", domain.RoomStateResetPending).Info("Resetting protected room")

	if err := s.progress.DeleteRoomCompletions(ctx, room.ID); err != nil {
		return mapRepoError("delete room completions", err)
	}
	memberIDs, err := s.memberIDs(ctx, room.ID)
	if err != nil {
		return err
	}
	if err := s.progress.DeleteCompletionsForUsers(ctx, memberIDs); err != nil {
		return mapRepoError("delete member completions", err)
	}
	if err := s.rooms.IncrementEpoch(ctx, room.ID); err != nil {
		return mapRepoError("increment epoch", err)
	}

	logCtx.WithFields(logrus.Fields{
		"state":   domain.RoomStateActive,
		"members": len(memberIDs),
	}).Info("Protected room reset")
	s.events.publish(ctx, domain.RoomEvent{Type: domain.EventRoomReset, RoomID: room.ID, Epoch: room.Epoch + 1})
	return nil
}

// destroyLocked 清空成员指针和成员关系，删除房间进度和房间本身。
// 个人模块完成记录保留。调用方持有房间锁。
func (s *LifecycleService) destroyLocked(ctx context.Context, room *domain.Room) error {
	logCtx := logrus.WithField("room_id", room.ID)

	memberIDs, err := s.memberIDs(ctx, room.ID)
	if err != nil {
		return err
	}
	if err := s.users.ClearCurrentRoom(ctx, room.ID, memberIDs); err != nil {
		return mapRepoError("clear current room", err)
	}
	if err := s.members.DeleteByRoom(ctx, room.ID); err != nil {
		return mapRepoError("delete memberships", err)
	}
	if err := s.progress.DeleteRoomCompletions(ctx, room.ID); err != nil {
		return mapRepoError("delete room completions", err)
	}
	if err := s.rooms.Delete(ctx, room.ID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return mapRepoError("delete room", err)
	}

	logCtx.WithFields(logrus.Fields{
		"state":   domain.RoomStateDestroyed,
		"members": len(memberIDs),
	}).Info("Room destroyed")
	s.events.publish(ctx, domain.RoomEvent{Type: domain.EventRoomDestroyed, RoomID: room.ID, Epoch: room.Epoch})
	return nil
}

func (s *LifecycleService) memberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	members, err := s.members.ListMembers(ctx, roomID)
	if err != nil {
		return nil, mapRepoError("list members", err)
	}
	ids := make([]uint, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids, nil
}
