package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/slottrader/internal/id"
)

// SQLite mirrors trade records into a database for ad hoc queries. The
// daily CSV files remain the source for reports.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Watchers write from their own goroutines; serialize on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// DB exposes the handle so other stores can share the file.
func (j *SQLite) DB() *sql.DB { return j.db }

func (j *SQLite) RecordTrade(t TradeRecord) error {
	if t.ID == "" {
		t.ID = id.New()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, tag, instrument, ticket, direction, volume, entry, stop_loss, take_profit, outcome, profit, balance, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Tag, t.Instrument, t.Ticket, t.Direction, t.Volume, t.Entry,
		t.StopLoss, t.TakeProfit, t.Outcome, t.Profit, t.Balance, t.OpenedAt, t.ClosedAt,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
