package limiter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wyfcoding/quant/xerrors"
)

// Slots 限制同时进行的回滚数量. 零值与 nil 均不限制.
type Slots struct {
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewSlots n <= 0 表示不限制.
func NewSlots(n int) *Slots {
	if n <= 0 {
		return &Slots{}
	}
	return &Slots{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire 等待空闲槽位，Context 先结束时返回 ErrDeadline 的派生错误.
func (s *Slots) Acquire(ctx context.Context) error {
	if s == nil || s.sem == nil {
		return nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return xerrors.Derive(xerrors.ErrDeadline, "waiting for a pricing slot: %v", err)
	}
	s.inUse.Add(1)
	return nil
}

func (s *Slots) TryAcquire() bool {
	if s == nil || s.sem == nil {
		return true
	}
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.inUse.Add(1)
	return true
}

// Release 归还一个槽位. 多余的 Release 只记录告警，不会让信号量 panic.
func (s *Slots) Release() {
	if s == nil || s.sem == nil {
		return
	}
	for {
		n := s.inUse.Load()
		if n == 0 {
			slog.Warn("pricing slot released without acquire")
			return
		}
		if s.inUse.CompareAndSwap(n, n-1) {
			s.sem.Release(1)
			return
		}
	}
}

// InUse 当前占用的槽位数.
func (s *Slots) InUse() int {
	if s == nil {
		return 0
	}
	return int(s.inUse.Load())
}
