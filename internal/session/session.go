// Package session persists the transient state of exports and imports in
// progress. Each operator holds at most one session per kind.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// DefaultTTL is how long a session survives without being touched.
const DefaultTTL = time.Hour

// Record is one stored session. Payload is the JSON-encoded session state.
type Record struct {
	Kind      string
	Operator  string
	Token     string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Paths decodes the payload and returns the filesystem paths the session
// owns.
func (r Record) Paths() ([]string, error) {
	switch r.Kind {
	case model.SessionExport:
		var s model.ExportSession
		if err := json.Unmarshal(r.Payload, &s); err != nil {
			return nil, fmt.Errorf("decoding export session: %w", err)
		}
		if s.FilePath == "" {
			return nil, nil
		}
		return []string{s.FilePath}, nil
	case model.SessionImport:
		var s model.ImportSession
		if err := json.Unmarshal(r.Payload, &s); err != nil {
			return nil, fmt.Errorf("decoding import session: %w", err)
		}
		return s.Paths(), nil
	}
	return nil, fmt.Errorf("unknown session kind %q", r.Kind)
}

// Store is the session backend. Get reports absent and expired sessions as
// model.ErrSessionNotFound.
type Store interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, kind, operator string) (*Record, error)
	Delete(ctx context.Context, kind, operator string) error

	// Expired returns sessions whose expiry is at or before now and
	// removes them from the store.
	Expired(ctx context.Context, now time.Time) ([]Record, error)
}

// Manager stores typed export and import sessions in a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager whose sessions expire ttl after their last
// save. A non-positive ttl selects DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Store returns the underlying backend.
func (m *Manager) Store() Store { return m.store }

// SaveExport persists s, replacing the operator's previous export session,
// and pushes its expiry forward.
func (m *Manager) SaveExport(ctx context.Context, s *model.ExportSession) error {
	now := m.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(m.ttl)
	return m.put(ctx, model.SessionExport, s.Operator, s.Token, s, s.CreatedAt, s.ExpiresAt)
}

// LoadExport returns the operator's export session if its token matches.
func (m *Manager) LoadExport(ctx context.Context, operator, token string) (*model.ExportSession, error) {
	var s model.ExportSession
	if err := m.load(ctx, model.SessionExport, operator, token, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteExport removes the operator's export session.
func (m *Manager) DeleteExport(ctx context.Context, operator string) error {
	return m.store.Delete(ctx, model.SessionExport, operator)
}

// SaveImport persists s, replacing the operator's previous import session,
// and pushes its expiry forward.
func (m *Manager) SaveImport(ctx context.Context, s *model.ImportSession) error {
	now := m.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(m.ttl)
	return m.put(ctx, model.SessionImport, s.Operator, s.Token, s, s.CreatedAt, s.ExpiresAt)
}

// LoadImport returns the operator's import session if its token matches.
func (m *Manager) LoadImport(ctx context.Context, operator, token string) (*model.ImportSession, error) {
	var s model.ImportSession
	if err := m.load(ctx, model.SessionImport, operator, token, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteImport removes the operator's import session.
func (m *Manager) DeleteImport(ctx context.Context, operator string) error {
	return m.store.Delete(ctx, model.SessionImport, operator)
}

// PendingImport returns the operator's import session regardless of token,
// or nil when there is none.
func (m *Manager) PendingImport(ctx context.Context, operator string) (*model.ImportSession, error) {
	rec, err := m.store.Get(ctx, model.SessionImport, operator)
	if err != nil {
		if model.KindOf(err) == model.KindSession {
			return nil, nil
		}
		return nil, err
	}
	var s model.ImportSession
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		return nil, fmt.Errorf("decoding import session: %w", err)
	}
	return &s, nil
}

func (m *Manager) put(ctx context.Context, kind, operator, token string, v any, created, expires time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s session: %w", kind, err)
	}
	return m.store.Put(ctx, Record{
		Kind:      kind,
		Operator:  operator,
		Token:     token,
		Payload:   payload,
		CreatedAt: created,
		ExpiresAt: expires,
	})
}

func (m *Manager) load(ctx context.Context, kind, operator, token string, v any) error {
	rec, err := m.store.Get(ctx, kind, operator)
	if err != nil {
		return err
	}
	if token == "" || rec.Token != token {
		return model.E(model.KindSession, kind, model.ErrSessionNotFound)
	}
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		return fmt.Errorf("decoding %s session: %w", kind, err)
	}
	return nil
}
