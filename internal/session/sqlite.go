package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// SQLStore keeps sessions in the workspace database.
type SQLStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewSQLStore returns a Store over the sessions table of conn.
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{DB: conn, now: time.Now}
}

func (s *SQLStore) Put(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.PutSession(s.DB, db.SessionRow(r))
}

func (s *SQLStore) Get(ctx context.Context, kind, operator string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, err := db.GetSession(s.DB, kind, operator, s.now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, model.E(model.KindSession, kind, model.ErrSessionNotFound)
		}
		return nil, err
	}
	r := Record(*row)
	return &r, nil
}

func (s *SQLStore) Delete(ctx context.Context, kind, operator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.DeleteSession(s.DB, kind, operator)
}

func (s *SQLStore) Expired(ctx context.Context, now time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := db.ListExpiredSessions(s.DB, now)
	if err != nil {
		return nil, err
	}
	if _, err := db.DeleteExpiredSessions(s.DB, now); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record(*row))
	}
	return out, nil
}
