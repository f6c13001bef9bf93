package window

import (
	"context"
	"sync/atomic"
	"time"
)

// FrameInterval approximates one display refresh.
const FrameInterval = 16 * time.Millisecond

// Scheduler runs at most one frame callback per tick, however many
// triggers arrive in between, and runs posted functions on the same
// goroutine.
type Scheduler struct {
	ticks <-chan time.Time
	dirty atomic.Bool
	posts chan func()
	done  chan struct{}
}

// NewScheduler returns a Scheduler driven by ticks. A nil ticks channel
// uses a FrameInterval ticker started by Run.
func NewScheduler(ticks <-chan time.Time) *Scheduler {
	return &Scheduler{
		ticks: ticks,
		posts: make(chan func(), 16),
		done:  make(chan struct{}),
	}
}

// Trigger requests a frame on the next tick.
func (s *Scheduler) Trigger() { s.dirty.Store(true) }

// Post queues fn to run on the scheduler goroutine. It returns false once
// the scheduler has stopped.
func (s *Scheduler) Post(fn func()) bool {
	select {
	case s.posts <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Run processes ticks and posted functions until ctx is done.
func (s *Scheduler) Run(ctx context.Context, frame func()) {
	defer close(s.done)
	ticks := s.ticks
	if ticks == nil {
		t := time.NewTicker(FrameInterval)
		defer t.Stop()
		ticks = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.posts:
			fn()
		case <-ticks:
			if s.dirty.Swap(false) {
				frame()
			}
		}
	}
}
