package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// CompletionResult 一次模块完成记录的聚合结果。
type CompletionResult struct {
	ModuleComplete bool `json:"module_complete"` // 房间全部成员都完成了该模块
	RoomComplete   bool `json:"room_complete"`   // 本次调用触发了房间的重置或销毁
	IsDemoReset    bool `json:"is_demo_reset"`   // RoomComplete 且房间是受保护房间
}

// UserProgress 用户个人进度。
type UserProgress struct {
	UserID           uint    `json:"user_id"`
	Username         string  `json:"username"`
	CompletedModules []int   `json:"completed_modules"`
	TotalModules     int     `json:"total_modules"`
	Percentage       float64 `json:"progress_percentage"`
	CurrentRoomID    *uint   `json:"current_room_id"`
}

// CompleteModuleResult 用户完成模块后的返回信息。
type CompleteModuleResult struct {
	ModuleNumber     int               `json:"module_number"`
	CompletedModules []int             `json:"completed_modules"`
	RoomID           *uint             `json:"room_id,omitempty"`
	RoomProgress     *CompletionResult `json:"room_progress,omitempty"`
}

// ToggleAction 管理员切换模块完成状态的动作。
type ToggleAction string

const (
	ToggleAdded   ToggleAction = "added"
	ToggleRemoved ToggleAction = "removed"
)

// ToggleResult 管理员切换结果。
type ToggleResult struct {
	UserID           uint              `json:"user_id"`
	ModuleNumber     int               `json:"module_number"`
	Action           ToggleAction      `json:"action"`
	CompletedModules []int             `json:"completed_modules"`
	RoomProgress     *CompletionResult `json:"room_progress,omitempty"`
}

// ProgressService 记录个人模块完成，并聚合为房间模块完成。
type ProgressService struct {
	users     repository.UserRepository
	members   repository.MembershipRepository
	progress  repository.ProgressRepository
	lifecycle *LifecycleService
	events    notifier
}

// NewProgressService 创建 ProgressService。events 可以为 nil。
func NewProgressService(
	users repository.UserRepository,
	members repository.MembershipRepository,
	progress repository.ProgressRepository,
	lifecycle *LifecycleService,
	events repository.EventPublisher,
) *ProgressService {
	if users == nil || members == nil || progress == nil {
		panic("repositories cannot be nil for ProgressService")
	}
	if lifecycle == nil {
		panic("LifecycleService cannot be nil for ProgressService")
	}
	return &ProgressService{
		users:     users,
		members:   members,
		progress:  progress,
		lifecycle: lifecycle,
		events:    notifier{pub: events},
	}
}

// RecordCompletion 记录 userID 在 roomID 中完成 moduleNumber，并在全员完成时标记房间模块完成。
// 六个模块都完成后交给 LifecycleService 重置或销毁房间。
// 重复调用是幂等的；任何存储错误都会返回给调用方。
// 房间或用户不存在时返回 ErrRoomNotFound / ErrUserNotFound，不写入任何记录。
func (s *ProgressService) RecordCompletion(ctx context.Context, roomID, userID uint, moduleNumber int) (*CompletionResult, error) {
	if err := domain.ValidateModuleNumber(moduleNumber); err != nil {
		return nil, ErrInvalidModule
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"module":  moduleNumber,
	})

	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.lifecycle.rooms.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("RecordCompletion: room not found")
			return nil, ErrRoomNotFound
		}
		return nil, mapRepoError("find room", err)
	}

	// 1. 个人完成记录，已存在视为成功
	if _, err := s.progress.InsertModuleCompletion(ctx, userID, moduleNumber); err != nil {
		logCtx.WithError(err).Error("Failed to record module completion")
		return nil, mapRepoError("insert module completion", err)
	}

	// 2-3. 统计与插入房间完成标记在房间锁内进行，不会与重置交错
	res, roomDone, err := s.aggregate(ctx, roomID, userID, moduleNumber)
	if err != nil {
		logCtx.WithError(err).Error("Failed to aggregate room module completion")
		return nil, err
	}
	if !roomDone {
		return res, nil
	}

	// 4. 六个模块全部完成 -> 生命周期转换
	transition, err := s.lifecycle.CompleteRoom(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Room lifecycle transition failed")
		return nil, err
	}
	switch transition {
	case TransitionReset:
		res.RoomComplete = true
		res.IsDemoReset = true
	case TransitionDestroyed:
		res.RoomComplete = true
	}
	return res, nil
}

// aggregate 在房间锁内统计成员完成情况并原子插入房间完成标记。
// roomDone 表示插入后房间六个模块是否都已完成。
func (s *ProgressService) aggregate(ctx context.Context, roomID, userID uint, moduleNumber int) (res *CompletionResult, roomDone bool, err error) {
	unlock := s.lifecycle.locks.lock(roomID)
	defer unlock()

	res = &CompletionResult{}
	memberIDs, err := s.lifecycle.memberIDs(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if len(memberIDs) == 0 {
		// 空房间不会完成任何模块
		return res, false, nil
	}
	done, err := s.progress.CountCompleted(ctx, memberIDs, moduleNumber)
	if err != nil {
		return nil, false, mapRepoError("count module completions", err)
	}
	if done < int64(len(memberIDs)) {
		return res, false, nil
	}
	res.ModuleComplete = true

	// 只有真正插入的调用者发布事件
	created, err := s.progress.InsertRoomCompletion(ctx, roomID, moduleNumber)
	if err != nil {
		return nil, false, mapRepoError("insert room completion", err)
	}
	if created {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"module":  moduleNumber,
			"members": len(memberIDs),
		}).Info("Room completed module")
		s.events.publish(ctx, domain.RoomEvent{Type: domain.EventModuleCompleted, RoomID: roomID, UserID: userID, ModuleNumber: moduleNumber})
	}

	mods, err := s.progress.RoomCompletedModules(ctx, roomID)
	if err != nil {
		return nil, false, mapRepoError("list room completions", err)
	}
	return res, len(mods) >= domain.TotalModules, nil
}

// CompleteModule 当前用户完成模块。用户不在任何房间时只记录个人进度。
func (s *ProgressService) CompleteModule(ctx context.Context, userID uint, moduleNumber int) (*CompleteModuleResult, error) {
	if err := domain.ValidateModuleNumber(moduleNumber); err != nil {
		return nil, ErrInvalidModule
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &CompleteModuleResult{ModuleNumber: moduleNumber}
	res.RoomProgress, err = s.recordForUser(ctx, user, moduleNumber)
	if err != nil {
		return nil, err
	}
	res.RoomID = user.CurrentRoomID

	// 重置后个人进度可能已被清空
	res.CompletedModules, err = s.completedModules(ctx, userID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UserProgress 查询用户个人进度。
func (s *ProgressService) UserProgress(ctx context.Context, userID uint) (*UserProgress, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	mods, err := s.completedModules(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserProgress{
		UserID:           user.ID,
		Username:         user.Username,
		CompletedModules: mods,
		TotalModules:     domain.TotalModules,
		Percentage:       domain.ProgressPercentage(len(mods)),
		CurrentRoomID:    user.CurrentRoomID,
	}, nil
}

// ToggleModule 管理员切换用户的模块完成状态。
// 移除时重新检查房间该模块是否仍然全员完成；添加时走正常的聚合流程。
func (s *ProgressService) ToggleModule(ctx context.Context, userID uint, moduleNumber int) (*ToggleResult, error) {
	if err := domain.ValidateModuleNumber(moduleNumber); err != nil {
		return nil, ErrInvalidModule
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "module": moduleNumber})

	res := &ToggleResult{UserID: userID, ModuleNumber: moduleNumber}
	deleted, err := s.progress.DeleteModuleCompletion(ctx, userID, moduleNumber)
	if err != nil {
		return nil, mapRepoError("delete module completion", err)
	}

	if deleted {
		res.Action = ToggleRemoved
		if user.CurrentRoomID != nil {
			if _, err := s.RecheckModule(ctx, *user.CurrentRoomID, moduleNumber); err != nil {
				return nil, err
			}
		}
	} else {
		res.Action = ToggleAdded
		res.RoomProgress, err = s.recordForUser(ctx, user, moduleNumber)
		if err != nil {
			return nil, err
		}
	}
	logCtx.WithField("action", res.Action).Info("Module completion toggled by admin")

	res.CompletedModules, err = s.completedModules(ctx, userID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecheckModule 重新计算房间某模块是否全员完成，不再成立时删除房间完成标记。
// 返回检查后该模块是否仍处于完成状态。
func (s *ProgressService) RecheckModule(ctx context.Context, roomID uint, moduleNumber int) (bool, error) {
	unlock := s.lifecycle.locks.lock(roomID)
	defer unlock()

	memberIDs, err := s.lifecycle.memberIDs(ctx, roomID)
	if err != nil {
		return false, err
	}
	complete := false
	if len(memberIDs) > 0 {
		done, err := s.progress.CountCompleted(ctx, memberIDs, moduleNumber)
		if err != nil {
			return false, mapRepoError("count module completions", err)
		}
		complete = done >= int64(len(memberIDs))
	}
	if complete {
		return true, nil
	}

	deleted, err := s.progress.DeleteRoomCompletion(ctx, roomID, moduleNumber)
	if err != nil {
		return false, mapRepoError("delete room completion", err)
	}
	if deleted {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "module": moduleNumber}).Info("Room module completion revoked")
	}
	return false, nil
}

// recordForUser 用户在房间中时走房间聚合，否则只记录个人进度。
// 当前房间已不存在 (悬挂指针) 时清除指针，按不在房间处理。
func (s *ProgressService) recordForUser(ctx context.Context, user *domain.User, moduleNumber int) (*CompletionResult, error) {
	if user.CurrentRoomID != nil {
		roomID := *user.CurrentRoomID
		res, err := s.RecordCompletion(ctx, roomID, user.ID, moduleNumber)
		if !errors.Is(err, ErrRoomNotFound) {
			return res, err
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "room_id": roomID}).Warn("Current room no longer exists, clearing pointer")
		if err := s.users.ClearCurrentRoom(ctx, roomID, []uint{user.ID}); err != nil {
			return nil, mapRepoError("clear current room", err)
		}
		user.CurrentRoomID = nil
	}
	if _, err := s.progress.InsertModuleCompletion(ctx, user.ID, moduleNumber); err != nil {
		return nil, mapRepoError("insert module completion", err)
	}
	return nil, nil
}

func (s *ProgressService) findUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, mapRepoError("find user", err)
	}
	return user, nil
}

func (s *ProgressService) completedModules(ctx context.Context, userID uint) ([]int, error) {
	mods, err := s.progress.CompletedModules(ctx, userID)
	if err != nil {
		return nil, mapRepoError("list completed modules", err)
	}
	if mods == nil {
		mods = []int{}
	}
	return mods, nil
}
