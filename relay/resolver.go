package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrResolutionTimeout       = errors.New("metadata resolution timed out")
	ErrResolutionFailed        = errors.New("metadata resolution failed")
	ErrContentUnavailable      = errors.New("content unavailable")
	ErrMalformedResolverOutput = errors.New("malformed resolver output")
	ErrUpstreamFetchFailed     = errors.New("upstream fetch failed")
)

// UnavailableError carries the resolver's explanation for content that
// cannot be played. It matches ErrContentUnavailable.
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string        { return "content unavailable: " + e.Message }
func (e *UnavailableError) Is(target error) bool { return target == ErrContentUnavailable }

// Metadata describes a playable source for one content page.
type Metadata struct {
	StreamURL string
	Title     string
	ID        string
	// Filesize is 0 when unknown.
	Filesize int64
}

// Resolver turns a content page URL into a playable source.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (Metadata, error)
}

// resolveWithDeadline runs r with a deadline. A result arriving after the
// deadline is dropped.
func resolveWithDeadline(ctx context.Context, r Resolver, pageURL string, timeout time.Duration) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		md  Metadata
		err error
	}
	ch := make(chan result, 1)
	go func() {
		md, err := r.Resolve(ctx, pageURL)
		ch <- result{md, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Metadata{}, fmt.Errorf("%w after %s", ErrResolutionTimeout, timeout)
		}
		return res.md, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Metadata{}, fmt.Errorf("%w after %s", ErrResolutionTimeout, timeout)
		}
		return Metadata{}, ctx.Err()
	}
}

// FindPython returns the first virtualenv interpreter under root, falling
// back to python3 on PATH.
func FindPython(root string) string {
	for _, p := range []string{
		filepath.Join(root, "venv", "bin", "python3"),
		filepath.Join(root, ".venv", "bin", "python3"),
		filepath.Join(root, "venv", "Scripts", "python.exe"),
		filepath.Join(root, ".venv", "Scripts", "python.exe"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "python3"
}

// ScriptResolver runs `<Python> <Script> <url>`. The script prints one JSON
// object: {stream_url, title, id, filesize} or {error}.
type ScriptResolver struct {
	Python string
	Script string
}

type scriptOutput struct {
	StreamURL string  `json:"stream_url"`
	Title     string  `json:"title"`
	ID        string  `json:"id"`
	Filesize  float64 `json:"filesize"`
	Error     string  `json:"error"`
}

func (s *ScriptResolver) Resolve(ctx context.Context, pageURL string) (Metadata, error) {
	out, err := runResolver(ctx, exec.CommandContext(ctx, s.Python, s.Script, pageURL))
	if err != nil {
		return Metadata{}, err
	}

	var so scriptOutput
	if err := json.Unmarshal(bytes.TrimSpace(out), &so); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedResolverOutput, err)
	}
	if so.Error != "" {
		return Metadata{}, &UnavailableError{Message: so.Error}
	}
	if so.StreamURL == "" {
		return Metadata{}, fmt.Errorf("%w: missing stream_url", ErrMalformedResolverOutput)
	}
	return Metadata{StreamURL: so.StreamURL, Title: so.Title, ID: so.ID, Filesize: int64(so.Filesize)}, nil
}

// DefaultYTDLPFormat selects a progressive mp4 stream.
const DefaultYTDLPFormat = "best[ext=mp4][acodec!=none][vcodec!=none]/best[ext=mp4]/best"

// YTDLPResolver asks yt-dlp for the single-JSON description of a page.
type YTDLPResolver struct {
	Binary string
	Format string
}

// ytdlpOutput ignores filesize_approx: only an exact size may become a
// Content-Length.
type ytdlpOutput struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	ID       string  `json:"id"`
	Filesize float64 `json:"filesize"`
}

func (y *YTDLPResolver) Resolve(ctx context.Context, pageURL string) (Metadata, error) {
	bin := y.Binary
	if bin == "" {
		bin = "yt-dlp"
		if _, err := os.Stat("./yt-dlp"); err == nil {
			bin = "./yt-dlp"
		}
	}
	format := y.Format
	if format == "" {
		format = DefaultYTDLPFormat
	}
	cmd := exec.CommandContext(ctx, bin, "--dump-single-json", "--no-warnings", "--no-playlist", "-f", format, pageURL)
	out, err := runResolver(ctx, cmd)
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if msg, ok := ytdlpUnavailable(ee.stderr); ok {
				return Metadata{}, &UnavailableError{Message: msg}
			}
		}
		return Metadata{}, err
	}

	var yo ytdlpOutput
	if err := json.Unmarshal(out, &yo); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedResolverOutput, err)
	}
	if yo.URL == "" {
		return Metadata{}, fmt.Errorf("%w: missing url", ErrMalformedResolverOutput)
	}
	return Metadata{StreamURL: yo.URL, Title: yo.Title, ID: yo.ID, Filesize: int64(yo.Filesize)}, nil
}

// ytdlpUnavailable extracts the message of an "ERROR:" line that reports
// content which cannot be played.
func ytdlpUnavailable(stderr string) (string, bool) {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ERROR:") {
			continue
		}
		msg := strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		for _, marker := range []string{"unavailable", "Private video", "removed", "not available", "confirm your age"} {
			if strings.Contains(msg, marker) {
				return msg, true
			}
		}
	}
	return "", false
}

type exitError struct {
	err    error
	stderr string
}

func (e *exitError) Error() string {
	if e.stderr == "" {
		return e.err.Error()
	}
	return e.err.Error() + ": " + e.stderr
}

func (e *exitError) Unwrap() error { return e.err }

// runResolver runs cmd and returns its stdout. A killed process on an
// expired context reports ErrResolutionTimeout.
func runResolver(ctx context.Context, cmd *exec.Cmd) ([]byte, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionTimeout, ctx.Err())
	}
	return nil, fmt.Errorf("%w: %w", ErrResolutionFailed,
		&exitError{err: err, stderr: strings.TrimSpace(stderr.String())})
}
