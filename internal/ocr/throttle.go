package ocr

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces calls to a remote engine evenly. Each caller reserves the
// next free slot; a caller that gives up returns its slot if nobody queued
// behind it.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

func NewThrottle(perSecond int) *Throttle {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Throttle{interval: time.Second / time.Duration(perSecond), now: time.Now}
}

func (t *Throttle) reserve() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.now()
	if t.next.After(slot) {
		slot = t.next
	}
	t.next = slot.Add(t.interval)
	return slot
}

func (t *Throttle) release(slot time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next.Equal(slot.Add(t.interval)) {
		t.next = slot
	}
}

// Wait blocks until the caller's slot or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	slot := t.reserve()
	delay := slot.Sub(t.now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		t.release(slot)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
