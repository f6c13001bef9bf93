package relay

import (
	"context"
	"errors"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"vidtok/metrics"
)

const (
	defaultChunkSize = 32 * 1024
	sinkQueue        = 8
)

// teeResult reports how a fan-out ended. Each field is written by one
// goroutine and read after the group has joined.
type teeResult struct {
	Bytes     int64
	Drained   bool // src reached EOF
	ReadErr   error
	ClientErr error
	CacheErr  error
}

// tee copies src to client and cache. Every chunk reaches each sink in
// order through its own queue. A client error stops the copy; a cache error
// only silences the cache sink. src is closed when the copy stops.
func tee(ctx context.Context, src io.ReadCloser, client, cache io.Writer, chunkSize int, m *metrics.Metrics) teeResult {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	var res teeResult
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { src.Close() })
	defer stop()

	toClient := make(chan []byte, sinkQueue)
	toCache := make(chan []byte, sinkQueue)

	g.Go(func() error {
		defer close(toCache)
		defer close(toClient)
		for {
			buf := make([]byte, chunkSize)
			n, err := src.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				res.Bytes += int64(n)
				for _, q := range [...]chan []byte{toClient, toCache} {
					select {
					case q <- chunk:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			if errors.Is(err, io.EOF) {
				res.Drained = true
				return nil
			}
			if err != nil {
				if gctx.Err() == nil {
					res.ReadErr = err
				}
				return err
			}
		}
	})

	g.Go(func() error {
		for chunk := range toClient {
			if _, err := client.Write(chunk); err != nil {
				res.ClientErr = err
				return err
			}
			m.RelayBytes("client", len(chunk))
		}
		return nil
	})

	g.Go(func() error {
		for chunk := range toCache {
			if res.CacheErr != nil {
				continue
			}
			if _, err := cache.Write(chunk); err != nil {
				res.CacheErr = err
				continue
			}
			m.RelayBytes("cache", len(chunk))
		}
		return nil
	})

	g.Wait()
	return res
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	return &flushWriter{w: w, rc: http.NewResponseController(w)}
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
