package session

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

func newDisabledRedisStore() *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr: "localhost:0",
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("redis disabled in tests")
		},
		MaxRetries: -1,
	}))
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	s := newDisabledRedisStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, Record{Kind: model.SessionExport, Operator: "alice", ExpiresAt: time.Now().Add(time.Hour)}); err == nil {
		t.Error("Put: expected error")
	}
	_, err := s.Get(ctx, model.SessionExport, "alice")
	if err == nil || errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Get err = %v, want a connection error", err)
	}
	if _, err := s.Expired(ctx, time.Now()); err == nil {
		t.Error("Expired: expected error")
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("http://not-redis"); err == nil {
		t.Error("expected error for non-redis url")
	}
}

// TestRedisStoreLive runs against a real server when PORTER_TEST_REDIS_URL
// is set.
func TestRedisStoreLive(t *testing.T) {
	url := os.Getenv("PORTER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PORTER_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(url)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	now := time.Now().UTC()
	operator := "test-" + now.Format("150405.000000000")

	m := NewManager(s, time.Hour)
	if err := m.SaveExport(ctx, &model.ExportSession{Token: "tok", Operator: operator, FilePath: "/tmp/x.json"}); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}
	defer m.DeleteExport(ctx, operator)

	got, err := m.LoadExport(ctx, operator, "tok")
	if err != nil {
		t.Fatalf("LoadExport: %v", err)
	}
	if got.FilePath != "/tmp/x.json" {
		t.Errorf("FilePath = %q", got.FilePath)
	}

	expired, err := s.Expired(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	found := false
	for _, r := range expired {
		if r.Operator == operator {
			found = true
		}
	}
	if !found {
		t.Error("session not reported as expired")
	}
	if _, err := m.LoadExport(ctx, operator, "tok"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("after Expired err = %v, want ErrSessionNotFound", err)
	}
}
