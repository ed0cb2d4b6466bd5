package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sessionTimeLayout is fixed-width so expiry comparisons can be done on the
// stored text.
const sessionTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SessionRow is one persisted pipeline session. Payload is the JSON-encoded
// session state.
type SessionRow struct {
	Kind      string
	Operator  string
	Token     string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PutSession stores a session, replacing any session of the same kind the
// operator already holds.
func PutSession(db *sql.DB, s SessionRow) error {
	_, err := db.Exec(
		`INSERT INTO sessions (kind, operator, token, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kind, operator) DO UPDATE SET
		   token = excluded.token,
		   payload = excluded.payload,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		s.Kind, s.Operator, s.Token, string(s.Payload),
		s.CreatedAt.UTC().Format(sessionTimeLayout), s.ExpiresAt.UTC().Format(sessionTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// GetSession retrieves the operator's session of the given kind. Expired
// sessions are reported as ErrNotFound.
func GetSession(db *sql.DB, kind, operator string, now time.Time) (*SessionRow, error) {
	s, err := scanSessionFrom(db.QueryRow(
		`SELECT kind, operator, token, payload, created_at, expires_at
		 FROM sessions WHERE kind = ? AND operator = ?`,
		kind, operator,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if !now.Before(s.ExpiresAt) {
		return nil, ErrNotFound
	}
	return s, nil
}

// DeleteSession removes the operator's session of the given kind. Deleting
// an absent session is not an error.
func DeleteSession(db *sql.DB, kind, operator string) error {
	if _, err := db.Exec(`DELETE FROM sessions WHERE kind = ? AND operator = ?`, kind, operator); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListExpiredSessions returns every session whose expiry is at or before now.
func ListExpiredSessions(db *sql.DB, now time.Time) ([]*SessionRow, error) {
	rows, err := db.Query(
		`SELECT kind, operator, token, payload, created_at, expires_at
		 FROM sessions WHERE expires_at <= ? ORDER BY expires_at`,
		now.UTC().Format(sessionTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying expired sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		s, err := scanSessionFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return out, nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before
// now and returns how many were removed.
func DeleteExpiredSessions(db *sql.DB, now time.Time) (int, error) {
	res, err := db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, now.UTC().Format(sessionTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanSessionFrom(s scanner) (*SessionRow, error) {
	var row SessionRow
	var payload, createdAt, expiresAt string
	if err := s.Scan(&row.Kind, &row.Operator, &row.Token, &payload, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	row.Payload = []byte(payload)

	t, err := time.Parse(sessionTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	row.CreatedAt = t

	t, err = time.Parse(sessionTimeLayout, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	row.ExpiresAt = t

	return &row, nil
}
