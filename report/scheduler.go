package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/metrics"
)

// Logs is the per-day trade log store reports are built from.
type Logs interface {
	Dir() string
	Path(day time.Time) string
	Exists(day time.Time) bool
	Combine(out string, start, end time.Time) (int, error)
}

// Delivery describes one report that was sent.
type Delivery struct {
	Kind       Kind
	Key        string
	Attachment string
}

type Scheduler struct {
	logs      Logs
	sentinels Sentinels
	sender    Sender
	weekEnd   time.Weekday
	log       zerolog.Logger
}

func NewScheduler(logs Logs, sentinels Sentinels, sender Sender, weekEnd time.Weekday, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		logs:      logs,
		sentinels: sentinels,
		sender:    sender,
		weekEnd:   weekEnd,
		log:       log.With().Str("component", "report").Logger(),
	}
}

// IsLastDayOfMonth reports whether day is the final calendar day of its month.
func IsLastDayOfMonth(day time.Time) bool {
	return day.AddDate(0, 0, 1).Month() != day.Month()
}

// Run sends whatever reports are due for the server day: the daily log if
// one exists, the weekly log on the week-end day, the monthly log on the
// last day of the month. Reports already marked sent are skipped. A failed
// delivery does not stop the others; all errors are joined.
func (s *Scheduler) Run(ctx context.Context, day time.Time) ([]Delivery, error) {
	y, m, d := day.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var out []Delivery
	var errs []error

	try := func(kind Kind, key string, build func() (Message, error)) {
		del, err := s.deliver(ctx, kind, key, build)
		if err != nil {
			errs = append(errs, err)
			return
		}
		if del != nil {
			out = append(out, *del)
		}
	}

	if s.logs.Exists(day) {
		key := day.Format("2006-01-02")
		try(Daily, key, func() (Message, error) {
			return Message{
				Subject:    "Daily Trading Log - " + key,
				Body:       "Attached is today's trading log.",
				Attachment: s.logs.Path(day),
			}, nil
		})
	} else {
		s.log.Debug().Time("day", day).Msg("no trades logged, daily report skipped")
	}

	if day.Weekday() == s.weekEnd {
		start := day.AddDate(0, 0, -6)
		key := day.Format("2006-01-02")
		try(Weekly, key, func() (Message, error) {
			file := filepath.Join(s.logs.Dir(), "weekly_"+key+".csv")
			if _, err := s.combine(file, start, day); err != nil {
				return Message{}, err
			}
			return Message{
				Subject:    "Weekly Trading Log - week ending " + key,
				Body:       fmt.Sprintf("Attached trading log for %s to %s.", start.Format("2006-01-02"), key),
				Attachment: file,
			}, nil
		})
	}

	if IsLastDayOfMonth(day) {
		key := day.Format("2006-01")
		try(Monthly, key, func() (Message, error) {
			file := filepath.Join(s.logs.Dir(), "monthly_"+key+".csv")
			if _, err := s.combine(file, time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), day); err != nil {
				return Message{}, err
			}
			return Message{
				Subject:    "Monthly Trading Log - " + key,
				Body:       fmt.Sprintf("Attached trading log for %s.", key),
				Attachment: file,
			}, nil
		})
	}

	return out, errors.Join(errs...)
}

func (s *Scheduler) combine(file string, start, end time.Time) (int, error) {
	n, err := s.logs.Combine(file, start, end)
	if err != nil {
		return 0, fmt.Errorf("combine %s: %w", filepath.Base(file), err)
	}
	s.log.Info().Int("rows", n).Str("file", filepath.Base(file)).Msg("combined logs")
	return n, nil
}

// deliver claims the sentinel and, only if this caller won it, builds and
// sends the report. The claim is never released: a failed send is logged
// and not retried.
func (s *Scheduler) deliver(ctx context.Context, kind Kind, key string, build func() (Message, error)) (*Delivery, error) {
	sent, err := s.sentinels.Sent(ctx, kind, key)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, key, err)
	}
	if sent {
		metrics.Report(string(kind), "duplicate")
		return nil, nil
	}

	won, err := s.sentinels.Claim(ctx, kind, key)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, key, err)
	}
	if !won {
		metrics.Report(string(kind), "duplicate")
		return nil, nil
	}

	msg, err := build()
	if err == nil {
		err = s.sender.Send(ctx, msg)
	}
	if err != nil {
		metrics.Report(string(kind), "failed")
		s.log.Error().Err(err).Str("kind", string(kind)).Str("key", key).Msg("report not delivered")
		return nil, fmt.Errorf("%s %s: %w", kind, key, err)
	}

	metrics.Report(string(kind), "sent")
	s.log.Info().Str("kind", string(kind)).Str("key", key).Str("subject", msg.Subject).Msg("report sent")
	return &Delivery{Kind: kind, Key: key, Attachment: msg.Attachment}, nil
}
