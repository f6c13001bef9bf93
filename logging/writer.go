package logging

import (
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Writer drops lines matching a deny pattern and identical lines repeated
// within a window. The leading time attribute written by slog is ignored
// when comparing lines.
type Writer struct {
	dst    io.Writer
	deny   *regexp.Regexp
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	writes   int
}

// NewWriter wraps dst. An empty or invalid denyPattern disables filtering
// and a zero window disables de-duplication.
func NewWriter(dst io.Writer, window time.Duration, denyPattern string) *Writer {
	var denyRE *regexp.Regexp
	if strings.TrimSpace(denyPattern) != "" {
		if re, err := regexp.Compile(denyPattern); err == nil {
			denyRE = re
		}
	}
	return &Writer{
		dst:      dst,
		deny:     denyRE,
		window:   window,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	line := string(p)
	if w.deny != nil && w.deny.MatchString(line) {
		return len(p), nil
	}
	if w.window <= 0 {
		return w.dst.Write(p)
	}

	key := dedupKey(line)
	now := w.now()

	w.mu.Lock()
	if last, ok := w.lastSeen[key]; ok && now.Sub(last) < w.window {
		w.mu.Unlock()
		return len(p), nil
	}
	w.lastSeen[key] = now
	w.writes++
	if w.writes%1024 == 0 {
		w.prune(now)
	}
	w.mu.Unlock()

	return w.dst.Write(p)
}

// prune forgets lines older than the window. Caller holds mu.
func (w *Writer) prune(now time.Time) {
	for k, t := range w.lastSeen {
		if now.Sub(t) >= w.window {
			delete(w.lastSeen, k)
		}
	}
}

func dedupKey(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, "time=") {
		if i := strings.IndexByte(line, ' '); i >= 0 {
			return line[i+1:]
		}
	}
	return line
}
