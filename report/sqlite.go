package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sentinelSchema = `
CREATE TABLE IF NOT EXISTS report_sentinels (
	kind TEXT NOT NULL,
	period_key TEXT NOT NULL,
	sent_at DATETIME NOT NULL,
	PRIMARY KEY (kind, period_key)
);
`

// SQLiteSentinels stores markers in a table next to the trade journal.
// The primary key makes INSERT OR IGNORE the exclusive create.
type SQLiteSentinels struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteSentinels(db *sql.DB) (*SQLiteSentinels, error) {
	if _, err := db.Exec(sentinelSchema); err != nil {
		return nil, fmt.Errorf("sentinel schema: %w", err)
	}
	return &SQLiteSentinels{db: db, now: time.Now}, nil
}

func (s *SQLiteSentinels) Sent(ctx context.Context, kind Kind, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM report_sentinels WHERE kind = ? AND period_key = ?`,
		string(kind), key).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteSentinels) Claim(ctx context.Context, kind Kind, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO report_sentinels (kind, period_key, sent_at) VALUES (?, ?, ?)`,
		string(kind), key, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
