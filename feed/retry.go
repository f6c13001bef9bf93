package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/googleapi"

	"vidtok/metrics"
)

// RetryPolicy retries network errors, HTTP 429 and HTTP 5xx with
// exponential backoff. MaxRetries counts attempts after the first.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultRetryPolicy allows three retries.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Initial:    500 * time.Millisecond,
	Max:        8 * time.Second,
	Multiplier: 2,
}

type retrier struct {
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

func newRetrier(policy RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *retrier {
	return &retrier{policy: policy, logger: logger, metrics: m, sleep: gax.Sleep}
}

// do runs fn until it succeeds, fails with a non-retryable error or the
// retry budget is spent. The returned error wraps one of the package
// sentinels.
func (r *retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	bo := gax.Backoff{
		Initial:    r.policy.Initial,
		Max:        r.policy.Max,
		Multiplier: r.policy.Multiplier,
	}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			r.metrics.UpstreamCall(op, "ok")
			return nil
		}

		classified, retryable := classify(err)
		if !retryable || attempt >= r.policy.MaxRetries {
			r.metrics.UpstreamCall(op, "error")
			return classified
		}
		r.metrics.UpstreamCall(op, "retry")

		pause := bo.Pause()
		r.logger.Warn("upstream call failed, retrying",
			"op", op, "attempt", attempt+1, "pause", pause, "err", err)
		if serr := r.sleep(ctx, pause); serr != nil {
			return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, serr)
		}
	}
}

// classify maps an upstream error to a package sentinel and reports whether
// another attempt may succeed.
func classify(err error) (error, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err), true
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), true
		case gerr.Code == http.StatusForbidden && quotaExceeded(gerr):
			return fmt.Errorf("%w: %w", ErrRateLimited, err), false
		default:
			return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), false
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err), false
	}
	if errors.Is(err, ErrMalformedResponse) {
		return err, false
	}

	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), true
}

func quotaExceeded(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
