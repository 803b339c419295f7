package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/service"
)

func TestRecordCompletion_ModuleCompleteOnlyWhenAllMembersDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, "ABC123", false, 1, 2, 3)

	for _, uid := range []uint{1, 2} {
		res, err := f.progressSvc.RecordCompletion(ctx, room.ID, uid, 1)
		require.NoError(t, err)
		assert.False(t, res.ModuleComplete)
	}
	mods, _ := f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Empty(t, mods, "还有成员未完成")

	res, err := f.progressSvc.RecordCompletion(ctx, room.ID, 3, 1)
	require.NoError(t, err)
	assert.True(t, res.ModuleComplete)
	assert.False(t, res.RoomComplete)

	mods, _ = f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Equal(t, []int{1}, mods)
	assert.Equal(t, 1, f.events.count(domain.EventModuleCompleted))
}

func TestRecordCompletion_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, "ABC123", false, 1)

	first, err := f.progressSvc.RecordCompletion(ctx, room.ID, 1, 2)
	require.NoError(t, err)
	second, err := f.progressSvc.RecordCompletion(ctx, room.ID, 1, 2)
	require.NoError(t, err, "重复完成不是错误")

	assert.Equal(t, first, second)
	mods, _ := f.progress.CompletedModules(ctx, 1)
	assert.Equal(t, []int{2}, mods)
	assert.Equal(t, 1, f.events.count(domain.EventModuleCompleted), "房间完成事件只发布一次")
}

func TestRecordCompletion_EmptyRoomNeverCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, "EMPTY1", false)
	f.seedUser(9)

	res, err := f.progressSvc.RecordCompletion(ctx, room.ID, 9, 1)
	require.NoError(t, err)
	assert.False(t, res.ModuleComplete)

	mods, _ := f.progress.CompletedModules(ctx, 9)
	assert.Equal(t, []int{1}, mods, "个人记录仍然写入")
}

func TestRecordCompletion_InvalidModule(t *testing.T) {
	f := newFixture(t)
	room := f.seedRoom(t, "ABC123", false, 1)

	for _, m := range []int{0, 7, -1} {
		_, err := f.progressSvc.RecordCompletion(context.Background(), room.ID, 1, m)
		assert.ErrorIs(t, err, service.ErrInvalidModule)
	}
}

func TestRecordCompletion_UnknownRoomOrUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, "ABC123", false, 1)

	_, err := f.progressSvc.RecordCompletion(ctx, 999, 1, 1)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, err = f.progressSvc.RecordCompletion(ctx, room.ID, 12345, 1)
	assert.ErrorIs(t, err, service.ErrUserNotFound)

	// 两种情况都不写入个人记录
	mods, _ := f.progress.CompletedModules(ctx, 1)
	assert.Empty(t, mods)
	mods, _ = f.progress.CompletedModules(ctx, 12345)
	assert.Empty(t, mods)
}

func TestCompleteModule_DanglingRoomPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(5)
	gone := uint(77)
	require.NoError(t, f.users.SetCurrentRoom(ctx, 5, &gone))

	res, err := f.progressSvc.CompleteModule(ctx, 5, 2)
	require.NoError(t, err)
	assert.Nil(t, res.RoomID)
	assert.Nil(t, res.RoomProgress)
	assert.Equal(t, []int{2}, res.CompletedModules)

	u, _ := f.users.FindByID(ctx, 5)
	assert.Nil(t, u.CurrentRoomID, "悬挂指针被清除")
}

func TestRecordCompletion_ConcurrentLastMembers_SingleRoomRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	members := []uint{1, 2, 3, 4, 5, 6, 7, 8}
	room := f.seedRoom(t, "RACE01", false, members...)

	var wg sync.WaitGroup
	results := make([]*service.CompletionResult, len(members))
	for i, uid := range members {
		i, uid := i, uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.progressSvc.RecordCompletion(ctx, room.ID, uid, 4)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	mods, _ := f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Equal(t, []int{4}, mods)
	assert.Equal(t, 1, f.events.count(domain.EventModuleCompleted))

	// 最后一个统计的调用者一定看到全员完成
	complete := 0
	for _, r := range results {
		if r != nil && r.ModuleComplete {
			complete++
		}
	}
	assert.GreaterOrEqual(t, complete, 1)
}

func TestRecordCompletion_DemoRoomResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	members := []uint{1, 2}
	room := f.seedRoom(t, "DEMO01", true, members...)
	f.completeAll(t, room.ID, members, 1, 2, 3, 4, 5)

	res, err := f.progressSvc.RecordCompletion(ctx, room.ID, 1, 6)
	require.NoError(t, err)
	assert.False(t, res.RoomComplete)

	res, err = f.progressSvc.RecordCompletion(ctx, room.ID, 2, 6)
	require.NoError(t, err)
	assert.True(t, res.ModuleComplete)
	assert.True(t, res.RoomComplete)
	assert.True(t, res.IsDemoReset)

	// 房间和成员关系保留，进度清空，纪元 +1
	after, err := f.rooms.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Epoch+1, after.Epoch)
	assert.True(t, after.IsProtected)

	mods, _ := f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Empty(t, mods)
	list, _ := f.members.ListMembers(ctx, room.ID)
	assert.Len(t, list, 2)
	for _, uid := range members {
		done, _ := f.progress.CompletedModules(ctx, uid)
		assert.Empty(t, done, "user %d progress should be cleared", uid)
		u, _ := f.users.FindByID(ctx, uid)
		assert.True(t, u.InRoom(room.ID))
	}
	assert.Equal(t, 1, f.events.count(domain.EventRoomReset))
	assert.Zero(t, f.events.count(domain.EventRoomDestroyed))
}

func TestRecordCompletion_RegularRoomDestroyed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	members := []uint{1, 2, 3}
	room := f.seedRoom(t, "REG001", false, members...)
	f.completeAll(t, room.ID, members, 1, 2, 3, 4, 5)
	f.completeAll(t, room.ID, members[:2], 6)

	res, err := f.progressSvc.RecordCompletion(ctx, room.ID, 3, 6)
	require.NoError(t, err)
	assert.True(t, res.RoomComplete)
	assert.False(t, res.IsDemoReset)

	_, err = f.rooms.FindByID(ctx, room.ID)
	assert.Error(t, err, "房间应已删除")
	list, _ := f.members.ListMembers(ctx, room.ID)
	assert.Empty(t, list)
	mods, _ := f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Empty(t, mods)

	for _, uid := range members {
		u, _ := f.users.FindByID(ctx, uid)
		assert.Nil(t, u.CurrentRoomID)
		done, _ := f.progress.CompletedModules(ctx, uid)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, done, "销毁不清空个人进度")
	}
	assert.Equal(t, 1, f.events.count(domain.EventRoomDestroyed))
}

func TestRecordCompletion_ConcurrentFinalModule_SingleTransition(t *testing.T) {
	for _, protected := range []bool{true, false} {
		f := newFixture(t)
		ctx := context.Background()
		members := []uint{1, 2, 3, 4, 5, 6}
		room := f.seedRoom(t, "FINAL1", protected, members...)
		f.completeAll(t, room.ID, members, 1, 2, 3, 4, 5)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			complete int
		)
		for _, uid := range members {
			uid := uid
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := f.progressSvc.RecordCompletion(ctx, room.ID, uid, 6)
				if !assert.NoError(t, err) {
					return
				}
				if res.RoomComplete {
					mu.Lock()
					complete++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, complete, "恰好一个调用者报告房间完成 (protected=%v)", protected)
		if protected {
			assert.Equal(t, 1, f.events.count(domain.EventRoomReset))
			after, err := f.rooms.FindByID(ctx, room.ID)
			require.NoError(t, err)
			assert.Equal(t, uint(1), after.Epoch)
		} else {
			assert.Equal(t, 1, f.events.count(domain.EventRoomDestroyed))
		}
	}
}

func TestCompleteModule_WithoutRoom(t *testing.T) {
	f := newFixture(t)
	f.seedUser(5)

	res, err := f.progressSvc.CompleteModule(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Nil(t, res.RoomID)
	assert.Nil(t, res.RoomProgress)
	assert.Equal(t, []int{3}, res.CompletedModules)
}

func TestCompleteModule_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.progressSvc.CompleteModule(context.Background(), 404, 1)
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestUserProgress_Percentage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(1)
	for _, m := range []int{1, 2, 3, 4} {
		_, err := f.progressSvc.CompleteModule(ctx, 1, m)
		require.NoError(t, err)
	}

	p, err := f.progressSvc.UserProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, p.CompletedModules)
	assert.Equal(t, domain.TotalModules, p.TotalModules)
	assert.Equal(t, 66.67, p.Percentage)
}

func TestToggleModule_RemoveRevokesRoomCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	members := []uint{1, 2}
	room := f.seedRoom(t, "TOG001", false, members...)
	f.completeAll(t, room.ID, members, 2)

	res, err := f.progressSvc.ToggleModule(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, service.ToggleRemoved, res.Action)
	assert.Empty(t, res.CompletedModules)

	mods, _ := f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Empty(t, mods, "成员撤销后房间模块不再完成")

	// 再次切换 -> 重新添加并重新聚合
	res, err = f.progressSvc.ToggleModule(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, service.ToggleAdded, res.Action)
	require.NotNil(t, res.RoomProgress)
	assert.True(t, res.RoomProgress.ModuleComplete)

	mods, _ = f.progress.RoomCompletedModules(ctx, room.ID)
	assert.Equal(t, []int{2}, mods)
}
