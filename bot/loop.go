package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/metrics"
	"github.com/rustyeddy/slottrader/report"
	"github.com/rustyeddy/slottrader/risk"
	"github.com/rustyeddy/slottrader/schedule"
)

// Firer trades a slot. *Executor is the production implementation.
type Firer interface {
	Fire(ctx context.Context, slot schedule.Slot, tag string) (OpenPosition, error)
}

// Reporter sends the reports due for a server day.
type Reporter interface {
	Run(ctx context.Context, day time.Time) ([]report.Delivery, error)
}

type LoopConfig struct {
	Instrument string
	Magic      int64
	FireWindow time.Duration
	Tick       time.Duration
	// ReportTimeout bounds one end-of-day report run.
	ReportTimeout time.Duration
}

// Loop is the trigger loop. It owns the day's schedule and its fired
// flags; everything it starts runs in Tasks.
type Loop struct {
	cfg      LoopConfig
	broker   broker.Broker
	tr       *schedule.Translator
	clock    *Clock
	firer    Firer
	budget   *risk.Budget
	tasks    *Tasks
	reporter Reporter
	log      zerolog.Logger

	mu          sync.RWMutex
	sched       *schedule.Schedule
	serverDay   time.Time
	reportedDay time.Time
	lastNow     time.Time
}

// NewLoop wires a loop. reporter may be nil to disable reports.
func NewLoop(cfg LoopConfig, b broker.Broker, tr *schedule.Translator, clock *Clock, firer Firer, budget *risk.Budget, tasks *Tasks, reporter Reporter, log zerolog.Logger) *Loop {
	if cfg.FireWindow <= 0 {
		cfg.FireWindow = 10 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 2 * time.Minute
	}
	return &Loop{
		cfg:      cfg,
		broker:   b,
		tr:       tr,
		clock:    clock,
		firer:    firer,
		budget:   budget,
		tasks:    tasks,
		reporter: reporter,
		log:      log,
	}
}

// Run steps once per tick until ctx is done. It does not wait for the
// tasks it started; call Tasks.Shutdown for that.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	for {
		l.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step is one poll: roll the day over if needed, fire or forfeit due
// slots, and send reports once the day is done.
func (l *Loop) Step(ctx context.Context) {
	now, fromBroker := l.clock.Server(ctx)
	day := dateOf(now)

	l.mu.Lock()
	if l.sched == nil || !day.Equal(l.serverDay) {
		l.rolloverLocked(day)
	}
	sched := l.sched
	l.lastNow = now

	var due []schedule.Slot
	for _, sl := range sched.Slots {
		if sl.Fired {
			continue
		}
		lag := now.Sub(sl.At)
		switch {
		case lag.Abs() <= l.cfg.FireWindow:
			sl.Fired = true
			due = append(due, *sl)
		case lag > l.cfg.FireWindow:
			sl.Fired = true
			metrics.SlotForfeited()
			l.log.Info().Str("slot", sl.Label).Time("at", sl.At).Dur("lag", lag).Msg("slot window passed, forfeited")
		}
	}
	allFired := sched.AllFired()
	l.mu.Unlock()

	l.heartbeat(now, fromBroker, sched)

	for _, sl := range due {
		sl := sl
		metrics.SlotFired()
		tag := sched.Tag(&sl)
		l.log.Info().Str("slot", sl.Label).Time("at", sl.At).Time("now", now).Msg("slot firing")
		l.tasks.Go("fire "+tag, func(ctx context.Context) {
			pos, err := l.firer.Fire(ctx, sl, tag)
			if err != nil {
				l.log.Debug().Err(err).Str("tag", tag).Msg("slot not traded")
				return
			}
			l.log.Debug().Str("tag", tag).Int64("ticket", pos.Ticket).Msg("slot traded")
		})
	}

	if allFired {
		l.endOfDay(ctx, day)
	}
}

// rolloverLocked builds the schedule whose slots land on the new server
// day, which is not always the civil date on the local clock.
func (l *Loop) rolloverLocked(day time.Time) {
	civilDay := l.tr.CivilDayFor(day)
	l.sched = l.tr.Build(civilDay)
	l.serverDay = day
	l.budget.Reset()

	l.log.Info().
		Str("server_day", day.Format(time.DateOnly)).
		Str("civil_day", civilDay.Format(time.DateOnly)).
		Int("offset_minutes", l.sched.OffsetMinutes).
		Bool("auto_offset", l.tr.IsAuto()).
		Float64("server_gmt", l.tr.ServerGMTHours(civilDay)).
		Msg("new server day")
	for _, sl := range l.sched.Slots {
		l.log.Info().Str("civil", sl.Label).Str("server", sl.At.Format("15:04")).Msg("schedule")
	}
}

func (l *Loop) heartbeat(now time.Time, fromBroker bool, sched *schedule.Schedule) {
	if l.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	civil := l.clock.Civil()
	ev := l.log.Debug().
		Time("server", now).
		Bool("server_from_broker", fromBroker).
		Str("civil", civil.Format(time.DateTime)).
		Int("measured_offset", measuredOffset(now, civil)).
		Int("offset", sched.OffsetMinutes).
		Int("fired", sched.FiredCount()).
		Int("slots", len(sched.Slots))

	// Fired flags are only written by the loop goroutine, which is us.
	if next, ok := sched.Next(now); ok {
		ev = ev.Str("next", next.Label).Str("next_server", next.At.Format("15:04:05")).Dur("in", next.At.Sub(now))
	}
	ev.Msg("heartbeat")
}

// endOfDay sends the day's reports once no trade of ours is in flight.
func (l *Loop) endOfDay(ctx context.Context, day time.Time) {
	if l.reporter == nil {
		return
	}
	l.mu.RLock()
	done := l.reportedDay.Equal(day)
	l.mu.RUnlock()
	if done || l.tasks.Active() > 0 {
		return
	}

	positions, err := l.broker.OpenPositions(ctx, l.cfg.Instrument)
	if err != nil {
		return
	}
	for _, p := range positions {
		if p.Magic == l.cfg.Magic {
			return
		}
	}

	rctx, cancel := context.WithTimeout(ctx, l.cfg.ReportTimeout)
	defer cancel()
	sent, err := l.reporter.Run(rctx, day)
	if err != nil {
		l.log.Error().Err(err).Msg("end of day reports")
		return
	}

	l.mu.Lock()
	l.reportedDay = day
	l.mu.Unlock()
	l.log.Info().Str("day", day.Format(time.DateOnly)).Int("sent", len(sent)).Msg("end of day")
}

// Snapshot is a copy of the loop's view for status output.
type Snapshot struct {
	ServerNow time.Time          `json:"server_now"`
	ServerDay string             `json:"server_day"`
	Realized  float64            `json:"realized"`
	Active    int                `json:"active_tasks"`
	Schedule  *schedule.Schedule `json:"schedule"`
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Snapshot{
		ServerNow: l.lastNow,
		Realized:  l.budget.Realized(),
		Active:    l.tasks.Active(),
	}
	if l.sched != nil {
		s.ServerDay = l.serverDay.Format(time.DateOnly)
		cp := *l.sched
		cp.Slots = make([]*schedule.Slot, len(l.sched.Slots))
		for i, sl := range l.sched.Slots {
			v := *sl
			cp.Slots[i] = &v
		}
		s.Schedule = &cp
	}
	return s
}
