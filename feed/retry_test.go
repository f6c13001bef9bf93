package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      error
		retryable bool
	}{
		{"429", &googleapi.Error{Code: 429}, ErrRateLimited, true},
		{"503", &googleapi.Error{Code: 503}, ErrUpstreamUnavailable, true},
		{"404", &googleapi.Error{Code: 404}, ErrUpstreamUnavailable, false},
		{"quota", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}, ErrRateLimited, false},
		{"forbidden", &googleapi.Error{Code: 403}, ErrUpstreamUnavailable, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrUpstreamUnavailable, true},
		{"syntax", fmt.Errorf("decode: %w", &json.SyntaxError{}), ErrMalformedResponse, false},
		{"canceled", context.Canceled, ErrUpstreamUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, retry := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
			if retry != tt.retryable {
				t.Errorf("retryable = %v, want %v", retry, tt.retryable)
			}
		})
	}
}

func testRetrier() (*retrier, *[]time.Duration) {
	var pauses []time.Duration
	r := newRetrier(RetryPolicy{MaxRetries: 3, Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 2}, slog.Default(), nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return r, &pauses
}

func TestRetrier_RetriesThreeTimesThenFails(t *testing.T) {
	r, pauses := testRetrier()
	calls := 0
	err := r.do(context.Background(), "videos.list", func(context.Context) error {
		calls++
		return &googleapi.Error{Code: 429}
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if len(*pauses) != 3 {
		t.Errorf("pauses = %d, want 3", len(*pauses))
	}
}

func TestRetrier_RecoversAfterServerError(t *testing.T) {
	r, _ := testRetrier()
	calls := 0
	err := r.do(context.Background(), "search.list", func(context.Context) error {
		calls++
		if calls == 1 {
			return &googleapi.Error{Code: 500}
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetrier_ClientErrorNotRetried(t *testing.T) {
	r, pauses := testRetrier()
	calls := 0
	err := r.do(context.Background(), "search.list", func(context.Context) error {
		calls++
		return &googleapi.Error{Code: 400}
	})
	if !errors.Is(err, ErrUpstreamUnavailable) || calls != 1 || len(*pauses) != 0 {
		t.Errorf("err = %v, calls = %d, pauses = %d", err, calls, len(*pauses))
	}
}

func TestRetrier_StopsWhenContextDone(t *testing.T) {
	r, _ := testRetrier()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.do(ctx, "videos.list", func(context.Context) error {
		calls++
		cancel()
		return &googleapi.Error{Code: 503}
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}
