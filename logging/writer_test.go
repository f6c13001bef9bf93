package logging

import (
	"bytes"
	"log/slog"
	"testing"
	"time"
)

func TestWriter_DedupWithinWindow(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 3*time.Second, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Write([]byte("time=2026-01-01T00:00:00Z level=INFO msg=hello\n"))
	now = now.Add(time.Second)
	w.Write([]byte("time=2026-01-01T00:00:01Z level=INFO msg=hello\n"))
	if got := bytes.Count(buf.Bytes(), []byte("msg=hello")); got != 1 {
		t.Fatalf("lines written = %d, want 1", got)
	}

	now = now.Add(3 * time.Second)
	w.Write([]byte("time=2026-01-01T00:00:04Z level=INFO msg=hello\n"))
	if got := bytes.Count(buf.Bytes(), []byte("msg=hello")); got != 2 {
		t.Fatalf("lines written after window = %d, want 2", got)
	}
}

func TestWriter_Deny(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0, `broken pipe`)

	n, err := w.Write([]byte("msg=\"write: broken pipe\"\n"))
	if err != nil || n == 0 {
		t.Fatalf("denied write returned %d, %v", n, err)
	}
	if buf.Len() != 0 {
		t.Errorf("denied line leaked: %q", buf.String())
	}
	w.Write([]byte("msg=ok\n"))
	if buf.String() != "msg=ok\n" {
		t.Errorf("buf = %q", buf.String())
	}
}

func TestWriter_PruneForgetsOldLines(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, time.Second, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Write([]byte("a\n"))
	now = now.Add(2 * time.Second)
	w.mu.Lock()
	w.prune(now)
	n := len(w.lastSeen)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("lastSeen = %d entries, want 0", n)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("") != slog.LevelInfo {
		t.Error("unexpected level mapping")
	}
}
