// Package report sends the end-of-day, weekly and monthly trade logs, each
// at most once per period. "Already sent" is a durable sentinel keyed by
// report kind and period key; only the caller that creates it delivers.
package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Kind is a report cadence.
type Kind string

const (
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Sentinels is a create-if-absent store of sent markers.
type Sentinels interface {
	// Sent reports whether the marker exists.
	Sent(ctx context.Context, kind Kind, key string) (bool, error)
	// Claim creates the marker. It returns true for exactly one caller per
	// (kind, key), across goroutines and process restarts.
	Claim(ctx context.Context, kind Kind, key string) (bool, error)
}

func sentValue(now time.Time) string {
	return "sent at " + now.UTC().Format(time.RFC3339Nano)
}

// FileSentinels keeps one flag file per marker, <dir>/__sent_<kind>_<key>.flag,
// created with O_EXCL.
type FileSentinels struct {
	dir string
	now func() time.Time
}

func NewFileSentinels(dir string) (*FileSentinels, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sentinel dir: %w", err)
	}
	return &FileSentinels{dir: dir, now: time.Now}, nil
}

func (s *FileSentinels) path(kind Kind, key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("__sent_%s_%s.flag", kind, key))
}

func (s *FileSentinels) Sent(_ context.Context, kind Kind, key string) (bool, error) {
	_, err := os.Stat(s.path(kind, key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FileSentinels) Claim(_ context.Context, kind Kind, key string) (bool, error) {
	f, err := os.OpenFile(s.path(kind, key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", kind, key, err)
	}
	defer f.Close()

	// The marker already exists; a failed write only loses the timestamp.
	_, _ = fmt.Fprintln(f, sentValue(s.now()))
	return true, nil
}
