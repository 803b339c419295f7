package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/repository"
)

// JoinResult 加入房间的结果。Joined 为 false 表示用户已经在该房间，本次调用没有任何修改。
type JoinResult struct {
	Room   *domain.Room `json:"room"`
	Joined bool         `json:"joined"`
}

// MemberInfo 房间成员列表项。
type MemberInfo struct {
	UserID   uint      `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo   repository.RoomRepository
	memberRepo repository.MembershipRepository
	userRepo   repository.UserRepository
	progress   repository.ProgressRepository
	events     notifier

	roomLocks *keyedLocks // 与 LifecycleService 共用，加入/离开不会与重置、销毁交错
	userLocks *keyedLocks
}

// NewRoomService 创建 RoomService 实例。events 可以为 nil。
func NewRoomService(
	roomRepo repository.RoomRepository,
	memberRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
	progress repository.ProgressRepository,
	lifecycle *LifecycleService,
	events repository.EventPublisher,
) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if memberRepo == nil || userRepo == nil || progress == nil {
		panic("repositories cannot be nil for RoomService")
	}
	if lifecycle == nil {
		panic("LifecycleService cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo:   roomRepo,
		memberRepo: memberRepo,
		userRepo:   userRepo,
		progress:   progress,
		events:     notifier{pub: events},
		roomLocks:  lifecycle.locks,
		userLocks:  newKeyedLocks(),
	}
}

// CreateRoom 创建一个新房间，房间码随机生成。
func (s *RoomService) CreateRoom(ctx context.Context, name string, creatorID uint) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidRoomName
	}

	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// 1. 生成唯一的房间码
		code, err := s.generateUniqueRoomCode(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique room code")
			return nil, err
		}

		// 2. 创建房间对象
		room, err := domain.NewRoom(code, name, creatorID)
		if err != nil {
			return nil, ErrInvalidRoomName
		}

		// 3. 保存房间。检查和保存之间可能被抢占，冲突时换一个码重试
		err = s.roomRepo.Save(ctx, room)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithField("room_code", code).Warn("Room code taken between check and insert, retrying")
			continue
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to save new room to database")
			return nil, mapRepoError("save room", err)
		}

		logCtx.WithFields(logrus.Fields{"room_id": room.ID, "room_code": room.Code}).Info("Room created successfully")
		return room, nil
	}
	return nil, ErrRoomCodeExhausted
}

// EnsureDemoRoom 确保受保护的演示房间存在。启动时调用，重复调用安全。
func (s *RoomService) EnsureDemoRoom(ctx context.Context, code, name string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_code", code)

	room, err := s.roomRepo.FindByCode(ctx, domain.NormalizeRoomCode(code))
	if err == nil {
		if !room.IsProtected {
			room.IsProtected = true
			if err := s.roomRepo.Save(ctx, room); err != nil {
				return nil, mapRepoError("protect demo room", err)
			}
			logCtx.Info("Existing room marked as protected demo room")
		}
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, mapRepoError("find demo room", err)
	}

	room, err = domain.NewRoom(code, name, 0)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRoomCode) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoomCode, err)
		}
		return nil, ErrInvalidRoomName
	}
	room.IsProtected = true
	if err := s.roomRepo.Save(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 另一个实例同时创建
			return s.EnsureDemoRoom(ctx, code, name)
		}
		return nil, mapRepoError("create demo room", err)
	}
	logCtx.WithField("room_id", room.ID).Info("Demo room created")
	return room, nil
}

// ListRooms 列出全部房间及成员数。
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := s.roomRepo.ListWithMemberCount(ctx)
	if err != nil {
		logrus.WithError(err).Error("ListRooms: Repository error")
		return nil, mapRepoError("list rooms", err)
	}
	if rooms == nil {
		rooms = []domain.RoomSummary{}
	}
	return rooms, nil
}

// JoinRoom 处理用户通过房间码加入房间。
// 用户已经在其他房间时先离开原房间；已经在目标房间时不做修改。
// 同一用户的加入/离开串行执行，并持有目标房间锁，不会与该房间的销毁交错。
func (s *RoomService) JoinRoom(ctx context.Context, userID uint, code string) (*JoinResult, error) {
	code = domain.NormalizeRoomCode(code)
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_code": code})
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, ErrInvalidRoomCode
	}

	// 1. 根据房间码查找房间
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Failed to find room by code: Not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Warn("Failed to find room by code: Repository error")
		return nil, mapRepoError("find room", err)
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	unlockUser := s.userLocks.lock(userID)
	defer unlockUser()
	unlockRoom := s.roomLocks.lock(room.ID)
	defer unlockRoom()

	// 等锁期间房间可能已被销毁或重置
	room, err = s.FindRoomByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.InRoom(room.ID) {
		// 补齐可能缺失的成员关系，但不视为新加入
		if _, err := s.addMember(ctx, room.ID, userID); err != nil {
			return nil, err
		}
		logCtx.Debug("User already in room")
		return &JoinResult{Room: room, Joined: false}, nil
	}

	// 2. 离开原房间
	if user.CurrentRoomID != nil {
		prev := *user.CurrentRoomID
		if err := s.memberRepo.RemoveMember(ctx, prev, userID); err != nil {
			return nil, mapRepoError("leave previous room", err)
		}
		logCtx.WithField("previous_room_id", prev).Info("User left previous room")
		s.events.publish(ctx, domain.RoomEvent{Type: domain.EventMemberLeft, RoomID: prev, UserID: userID})
	}

	// 3. 加入新房间
	if _, err := s.addMember(ctx, room.ID, userID); err != nil {
		logCtx.WithError(err).Warn("Failed to add member")
		return nil, err
	}
	if err := s.userRepo.SetCurrentRoom(ctx, userID, &room.ID); err != nil {
		return nil, mapRepoError("set current room", err)
	}

	logCtx.Info("User joined room successfully")
	s.events.publish(ctx, domain.RoomEvent{Type: domain.EventMemberJoined, RoomID: room.ID, UserID: userID, Epoch: room.Epoch})
	return &JoinResult{Room: room, Joined: true}, nil
}

// LeaveRoom 用户离开房间。用户不在该房间时返回 ErrNotRoomMember。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID uint) error {
	unlockUser := s.userLocks.lock(userID)
	defer unlockUser()
	unlockRoom := s.roomLocks.lock(roomID)
	defer unlockRoom()

	if _, err := s.FindRoomByID(ctx, roomID); err != nil {
		return err
	}
	members, err := s.memberRepo.ListMembers(ctx, roomID)
	if err != nil {
		return mapRepoError("list members", err)
	}
	isMember := false
	for _, m := range members {
		if m.UserID == userID {
			isMember = true
			break
		}
	}
	if !isMember {
		return ErrNotRoomMember
	}
	if err := s.memberRepo.RemoveMember(ctx, roomID, userID); err != nil {
		return mapRepoError("remove member", err)
	}
	if err := s.userRepo.ClearCurrentRoom(ctx, roomID, []uint{userID}); err != nil {
		return mapRepoError("clear current room", err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("User left room")
	s.events.publish(ctx, domain.RoomEvent{Type: domain.EventMemberLeft, RoomID: roomID, UserID: userID})
	return nil
}

// FindRoomByID 查找房间，不存在时返回 ErrRoomNotFound。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("FindRoomByID: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("FindRoomByID: Repository error")
		return nil, mapRepoError("find room", err)
	}
	return room, nil
}

// Members 按加入顺序返回房间成员。
func (s *RoomService) Members(ctx context.Context, roomID uint) ([]MemberInfo, error) {
	if _, err := s.FindRoomByID(ctx, roomID); err != nil {
		return nil, err
	}
	members, users, err := s.membersWithUsers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		info := MemberInfo{UserID: m.UserID, JoinedAt: m.JoinedAt}
		if u, ok := users[m.UserID]; ok {
			info.Username, info.Email, info.Role = u.Username, u.Email, u.Role
		}
		out = append(out, info)
	}
	return out, nil
}

// Stats 房间统计：成员数、房间已完成模块、每个成员的进度。
func (s *RoomService) Stats(ctx context.Context, roomID uint) (*domain.RoomStats, error) {
	room, err := s.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members, users, err := s.membersWithUsers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	stats := &domain.RoomStats{
		TotalMembers:   len(members),
		MemberProgress: make([]domain.MemberProgress, 0, len(members)),
		Epoch:          room.Epoch,
	}
	for _, m := range members {
		mods, err := s.progress.CompletedModules(ctx, m.UserID)
		if err != nil {
			return nil, mapRepoError("list completed modules", err)
		}
		if mods == nil {
			mods = []int{}
		}
		stats.MemberProgress = append(stats.MemberProgress, domain.MemberProgress{
			UserID:           m.UserID,
			Username:         users[m.UserID].Username,
			CompletedModules: mods,
		})
	}
	stats.CompletedModules, err = s.progress.RoomCompletedModules(ctx, roomID)
	if err != nil {
		return nil, mapRepoError("list room completions", err)
	}
	if stats.CompletedModules == nil {
		stats.CompletedModules = []int{}
	}
	return stats, nil
}

// SyncMembershipPointers 清理没有对应成员关系的当前房间指针，返回清理数量。
// 由定时任务调用。
func (s *RoomService) SyncMembershipPointers(ctx context.Context) (int, error) {
	users, err := s.userRepo.FindWithDanglingRoom(ctx)
	if err != nil {
		return 0, mapRepoError("find dangling pointers", err)
	}
	fixed := 0
	for _, u := range users {
		if err := s.userRepo.SetCurrentRoom(ctx, u.ID, nil); err != nil {
			logrus.WithError(err).WithField("user_id", u.ID).Error("Failed to clear dangling room pointer")
			continue
		}
		fixed++
	}
	if fixed > 0 {
		logrus.WithField("fixed", fixed).Info("Dangling room pointers cleared")
	}
	return fixed, nil
}

// --- 私有辅助函数 ---

func (s *RoomService) findUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, mapRepoError("find user", err)
	}
	return user, nil
}

// addMember 存储层拒绝时 (另一个实例同时让该用户加入了别的房间) 返回 ErrJoinConflict
func (s *RoomService) addMember(ctx context.Context, roomID, userID uint) (bool, error) {
	created, err := s.memberRepo.AddMember(ctx, roomID, userID)
	if errors.Is(err, repository.ErrMemberOfOtherRoom) {
		return false, ErrJoinConflict
	}
	if err != nil {
		return false, mapRepoError("add member", err)
	}
	return created, nil
}

func (s *RoomService) membersWithUsers(ctx context.Context, roomID uint) ([]domain.RoomMember, map[uint]domain.User, error) {
	members, err := s.memberRepo.ListMembers(ctx, roomID)
	if err != nil {
		return nil, nil, mapRepoError("list members", err)
	}
	ids := make([]uint, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	list, err := s.userRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, mapRepoError("find users", err)
	}
	users := make(map[uint]domain.User, len(list))
	for _, u := range list {
		users[u.ID] = u
	}
	return members, users, nil
}

// generateUniqueRoomCode 生成未被占用的房间码
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const maxAttempts = 10

	b := make([]byte, domain.RoomCodeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("room_code", code).Error("Database error checking room code uniqueness")
			return "", mapRepoError("check room code", err)
		}
		if !exists {
			logrus.WithField("room_code", code).Debugf("Generated unique room code after %d attempt(s).", attempt+1)
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	logrus.Errorf("Failed to generate a unique room code after %d attempts", maxAttempts)
	return "", ErrRoomCodeExhausted
}
