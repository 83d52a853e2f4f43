package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Header is the column layout of every daily and combined log.
var Header = []string{"Date", "Time", "Signal", "Volume", "Entry", "SL", "TP", "Result", "Profit", "Balance"}

// DailyCSV appends records to one CSV file per server day,
// <dir>/YYYY-MM-DD.csv. The daily files are what reports are built from.
type DailyCSV struct {
	dir           string
	priceDecimals int32

	mu sync.Mutex
}

// NewDailyCSV creates dir if needed. priceDecimals controls the entry and
// stop columns.
func NewDailyCSV(dir string, priceDecimals int) (*DailyCSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	if priceDecimals < 0 {
		priceDecimals = 3
	}
	return &DailyCSV{dir: dir, priceDecimals: int32(priceDecimals)}, nil
}

func (j *DailyCSV) Dir() string { return j.dir }

// Path is the log file for the server day.
func (j *DailyCSV) Path(day time.Time) string {
	return filepath.Join(j.dir, day.Format("2006-01-02")+".csv")
}

// Exists reports whether any trade was logged for the day.
func (j *DailyCSV) Exists(day time.Time) bool {
	_, err := os.Stat(j.Path(day))
	return err == nil
}

func (j *DailyCSV) RecordTrade(r TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	path := j.Path(r.Day())
	_, statErr := os.Stat(path)
	writeHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open day log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(j.row(r)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write day log: %w", err)
	}
	return nil
}

func (j *DailyCSV) row(r TradeRecord) []string {
	return []string{
		r.OpenedAt.Format("2006-01-02"),
		r.OpenedAt.Format("15:04"),
		r.Direction,
		fixed(r.Volume, 2),
		fixed(r.Entry, j.priceDecimals),
		fixed(r.StopLoss, j.priceDecimals),
		fixed(r.TakeProfit, j.priceDecimals),
		r.Outcome,
		fixed(r.Profit, 2),
		fixed(r.Balance, 2),
	}
}

// Combine concatenates the data rows of every daily log in [start, end]
// under a single header. Missing days are skipped. It returns the number
// of rows written.
func (j *DailyCSV) Combine(out string, start, end time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var rows [][]string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dayRows, err := readRows(j.Path(d))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		rows = append(rows, dayRows...)
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create combined log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return 0, err
	}
	if err := w.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("write combined log: %w", err)
	}
	return len(rows), nil
}

// Close is a no-op; files are opened per record.
func (j *DailyCSV) Close() error { return nil }

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
