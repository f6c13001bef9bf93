package window

import (
	"context"
	"sync/atomic"
)

// PageFunc fetches the page after token. An empty next token marks the
// end of the list.
type PageFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// Loader fetches pages one at a time. Results are handed to deliver through
// post so they land on the goroutine that owns the list.
type Loader[T any] struct {
	fetch PageFunc[T]
	post  func(func()) bool

	inFlight  atomic.Bool
	token     string
	exhausted bool
}

func NewLoader[T any](fetch PageFunc[T], post func(func()) bool) *Loader[T] {
	if post == nil {
		post = func(fn func()) bool { fn(); return true }
	}
	return &Loader[T]{fetch: fetch, post: post}
}

func (l *Loader[T]) Exhausted() bool { return l.exhausted }
func (l *Loader[T]) Loading() bool   { return l.inFlight.Load() }

// Reset forgets the stored token so the next load fetches the first page.
func (l *Loader[T]) Reset() {
	l.token, l.exhausted = "", false
}

// MaybeLoad starts fetching the next page when remaining is within
// LoadMoreThreshold, the list is not exhausted and no fetch is running.
// It reports whether a fetch started.
func (l *Loader[T]) MaybeLoad(ctx context.Context, remaining float64, deliver func(items []T, err error)) bool {
	if remaining > LoadMoreThreshold || l.exhausted {
		return false
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		return false
	}
	token := l.token
	go func() {
		items, next, err := l.fetch(ctx, token)
		ok := l.post(func() {
			defer l.inFlight.Store(false)
			if err == nil {
				l.token = next
				l.exhausted = next == ""
			}
			deliver(items, err)
		})
		if !ok {
			l.inFlight.Store(false)
		}
	}()
	return true
}
