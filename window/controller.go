package window

import (
	"context"
	"sync"
)

// Controller drives a Window from scroll and resize events, loading more
// pages as the viewport approaches the end of the list. Events may arrive
// from any goroutine; the Window is only touched by the scheduler.
type Controller[T, S any] struct {
	win    *Window[T, S]
	loader *Loader[T]
	sched  *Scheduler

	// OnError receives page fetch failures on the scheduler goroutine.
	OnError func(error)

	mu      sync.Mutex
	scroll  float64
	metrics *Metrics
	force   bool

	ctx context.Context
}

func NewController[T, S any](win *Window[T, S], fetch PageFunc[T], sched *Scheduler) *Controller[T, S] {
	c := &Controller[T, S]{win: win, sched: sched, force: true, ctx: context.Background()}
	c.loader = NewLoader(fetch, sched.Post)
	return c
}

func (c *Controller[T, S]) Loader() *Loader[T] { return c.loader }

// Scroll records the viewport offset.
func (c *Controller[T, S]) Scroll(offset float64) {
	c.mu.Lock()
	c.scroll = offset
	c.mu.Unlock()
	c.sched.Trigger()
}

// Resize applies new geometry and forces a layout.
func (c *Controller[T, S]) Resize(m Metrics) {
	c.mu.Lock()
	c.metrics = &m
	c.force = true
	c.mu.Unlock()
	c.sched.Trigger()
}

// Run renders frames until ctx is done.
func (c *Controller[T, S]) Run(ctx context.Context) {
	c.ctx = ctx
	c.sched.Trigger()
	c.sched.Run(ctx, c.frame)
}

func (c *Controller[T, S]) frame() {
	c.mu.Lock()
	scroll, m, force := c.scroll, c.metrics, c.force
	c.metrics, c.force = nil, false
	c.mu.Unlock()

	if m != nil {
		// Keep a measured item height unless the new geometry supplies one.
		if m.ItemHeight <= 0 {
			m.ItemHeight = c.win.Metrics().ItemHeight
		}
		c.win.SetMetrics(*m)
	}
	c.win.SetScroll(scroll)
	c.win.Render(force)

	c.loader.MaybeLoad(c.ctx, c.win.Remaining(), c.apply)
}

func (c *Controller[T, S]) apply(items []T, err error) {
	if err != nil {
		if c.OnError != nil {
			c.OnError(err)
		}
		return
	}
	c.win.Append(items...)
	// An empty page still advances the token; look again.
	c.sched.Trigger()
}
