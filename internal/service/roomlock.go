package service

import "sync"

// keyedLocks 按 ID (房间或用户) 分配的互斥锁，不同 ID 之间互不阻塞。
// 引用计数归零后删除条目，map 不会随 ID 数量无限增长。
// 同时需要用户锁和房间锁时，先取用户锁。
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uint]*keyedLock)}
}

// lock 获取 id 对应的锁，返回释放函数。
func (l *keyedLocks) lock(id uint) func() {
	l.mu.Lock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyedLock{}
		l.locks[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
