package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// execer abstracts *sql.DB and *sql.Tx for executing statements.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// RecordActivity logs a pipeline change on a product.
func RecordActivity(ex execer, productID int64, action, detail string, actor model.Actor) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := ex.Exec(
		`INSERT INTO activity_log (product_id, action, detail, session_token, operator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		productID, action, detail, actor.SessionToken, actor.Operator, now,
	)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// GetActivity retrieves activity log entries for a product, ordered by most recent first.
func GetActivity(db *sql.DB, productID int64, limit int) ([]model.Activity, error) {
	query := `SELECT id, product_id, action, detail, session_token, operator, created_at
	          FROM activity_log
	          WHERE product_id = ?
	          ORDER BY created_at DESC, id DESC`
	args := []interface{}{productID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var a model.Activity
		var detail, token, operator sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Action, &detail, &token, &operator, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		a.Detail = detail.String
		a.SessionToken = token.String
		a.Operator = operator.String

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing activity created_at: %w", err)
		}
		a.CreatedAt = t

		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	return activities, nil
}
