package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `id, tag, instrument, ticket, direction, volume, entry, stop_loss, take_profit, outcome, profit, balance, opened_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.ID,
		&rec.Tag,
		&rec.Instrument,
		&rec.Ticket,
		&rec.Direction,
		&rec.Volume,
		&rec.Entry,
		&rec.StopLoss,
		&rec.TakeProfit,
		&rec.Outcome,
		&rec.Profit,
		&rec.Balance,
		&rec.OpenedAt,
		&rec.ClosedAt,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(id string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", id)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesOpenedBetween returns trades whose opened_at is within [start, end).
func (j *SQLite) ListTradesOpenedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE opened_at >= ? AND opened_at < ?
		ORDER BY opened_at ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates a set of trades.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	NetProfit    float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
}

func Summarize(trades []TradeRecord) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		s.NetProfit += t.Profit
		switch {
		case t.Profit > 0:
			s.Wins++
			s.GrossProfit += t.Profit
		case t.Profit < 0:
			s.Losses++
			s.GrossLoss -= t.Profit
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

// Day lists the trades opened on the server day.
func (j *SQLite) Day(day time.Time) ([]TradeRecord, error) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return j.ListTradesOpenedBetween(start, start.AddDate(0, 0, 1))
}
