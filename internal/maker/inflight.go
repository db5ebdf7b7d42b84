package maker

import "sync"

// FillLock 成交处理的单令牌互斥锁。
//
// 同一时间最多一个成交处理流程在执行：
// - 持有期间价格驱动的重评估直接跳过（不排队）
// - 重复的成交通知 TryAcquire 失败后丢弃（不排队）
//
// 并发安全。
type FillLock struct {
	mu   sync.Mutex
	held bool
}

func NewFillLock() *FillLock {
	return &FillLock{}
}

// TryAcquire 尝试获取令牌，成功返回 true
func (l *FillLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

// Release 释放令牌，重复释放是安全的
func (l *FillLock) Release() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

// Held 当前是否有成交处理在进行
func (l *FillLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
