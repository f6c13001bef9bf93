package relay

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "resolve.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestScriptResolver(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    Metadata
		wantErr error
	}{
		{
			name:   "stream",
			script: `echo '{"stream_url":"https://cdn.example/v.mp4","title":"Clip","id":"'"$(basename "$1")"'","filesize":2048}'`,
			want:   Metadata{StreamURL: "https://cdn.example/v.mp4", Title: "Clip", ID: "watch?v=abcDEF12345", Filesize: 2048},
		},
		{name: "content error", script: `echo '{"error":"Video unavailable"}'`, wantErr: ErrContentUnavailable},
		{name: "garbage", script: `echo 'Traceback (most recent call last):'`, wantErr: ErrMalformedResolverOutput},
		{name: "missing url", script: `echo '{"title":"x"}'`, wantErr: ErrMalformedResolverOutput},
		{name: "process error", script: `echo "No URL provided" >&2; exit 1`, wantErr: ErrResolutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ScriptResolver{Python: "sh", Script: writeScript(t, tt.script)}
			md, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=abcDEF12345")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, md)
		})
	}
}

func TestScriptResolver_UnavailableMessage(t *testing.T) {
	r := &ScriptResolver{Python: "sh", Script: writeScript(t, `echo '{"error":"Private video"}'`)}
	_, err := r.Resolve(context.Background(), "u")
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "Private video", ue.Message)
}

func TestScriptResolver_KilledOnDeadline(t *testing.T) {
	r := &ScriptResolver{Python: "sh", Script: writeScript(t, `exec sleep 5`)}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Resolve(ctx, "u")
	require.ErrorIs(t, err, ErrResolutionTimeout)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestYTDLPResolver(t *testing.T) {
	bin := writeScript(t, `echo '{"url":"https://cdn.example/a.mp4","title":"A","id":"abcDEF12345","filesize":4096.0,"filesize_approx":5000.0}'`)
	md, err := (&YTDLPResolver{Binary: bin}).Resolve(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, Metadata{StreamURL: "https://cdn.example/a.mp4", Title: "A", ID: "abcDEF12345", Filesize: 4096}, md)
}

func TestYTDLPResolver_ApproximateSizeIsUnknown(t *testing.T) {
	bin := writeScript(t, `echo '{"url":"https://cdn.example/a.mp4","title":"A","id":"abcDEF12345","filesize":null,"filesize_approx":4096.0}'`)
	md, err := (&YTDLPResolver{Binary: bin}).Resolve(context.Background(), "u")
	require.NoError(t, err)
	require.Zero(t, md.Filesize)
}

func TestYTDLPResolver_Unavailable(t *testing.T) {
	bin := writeScript(t, `echo "ERROR: [youtube] abcDEF12345: Video unavailable. This video has been removed" >&2; exit 1`)
	_, err := (&YTDLPResolver{Binary: bin}).Resolve(context.Background(), "u")
	require.ErrorIs(t, err, ErrContentUnavailable)

	bin = writeScript(t, `echo "ERROR: unable to download webpage" >&2; exit 1`)
	_, err = (&YTDLPResolver{Binary: bin}).Resolve(context.Background(), "u")
	require.ErrorIs(t, err, ErrResolutionFailed)
	require.Contains(t, err.Error(), "unable to download webpage")
}

func TestFindPython(t *testing.T) {
	root := t.TempDir()
	require.Equal(t, "python3", FindPython(root))

	venv := filepath.Join(root, ".venv", "bin")
	require.NoError(t, os.MkdirAll(venv, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(venv, "python3"), nil, 0o755))
	require.Equal(t, filepath.Join(venv, "python3"), FindPython(root))

	first := filepath.Join(root, "venv", "bin")
	require.NoError(t, os.MkdirAll(first, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(first, "python3"), nil, 0o755))
	require.Equal(t, filepath.Join(first, "python3"), FindPython(root))
}

func TestResolveWithDeadline_PassesResult(t *testing.T) {
	res := resolverFunc(func(ctx context.Context, pageURL string) (Metadata, error) {
		_, ok := ctx.Deadline()
		require.True(t, ok)
		return Metadata{StreamURL: pageURL}, nil
	})
	md, err := resolveWithDeadline(context.Background(), res, "page", time.Second)
	require.NoError(t, err)
	require.Equal(t, "page", md.StreamURL)
}
