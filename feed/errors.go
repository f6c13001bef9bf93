package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable covers network failures, upstream 5xx after
	// retries and non-retryable upstream rejections.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned when the upstream keeps answering 429 or
	// reports an exhausted quota.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrMalformedResponse is returned when an upstream body cannot be
	// decoded or lacks required fields.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// FetchError attributes an upstream failure to the list being built.
type FetchError struct {
	Context string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Context, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Message is the client-facing text for the error.
func (e *FetchError) Message() string {
	return "Failed to fetch " + e.Context
}

func fetchErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Context: context, Err: err}
}
