package media

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/porter/internal/db"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake png body")...)
	gifBytes  = append([]byte("GIF89a"), []byte("fake gif body")...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, []byte("fake jpeg body")...)
)

func mustLibrary(t *testing.T) (*Library, *sql.DB) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Initialize(conn))
	return NewLibrary(conn, NewLocalStore(t.TempDir(), "")), conn
}

func mediaCount(t *testing.T, conn *sql.DB) int {
	t.Helper()
	n, err := db.CountMedia(conn)
	require.NoError(t, err)
	return n
}

// stubFetcher serves one blob (or error) and counts calls.
type stubFetcher struct {
	blob  *Blob
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(ctx context.Context, _ string) (*Blob, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	b := *s.blob
	return &b, nil
}
