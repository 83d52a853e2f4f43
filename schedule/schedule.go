package schedule

import (
	"time"
)

// Slot is one daily entry. At is on the server clock (UTC location, server
// wall time). Fired is owned by the trigger loop.
type Slot struct {
	Label string    `json:"label"`
	At    time.Time `json:"at"`
	Fired bool      `json:"fired"`
}

// Schedule is the set of slots for one civil day. It is rebuilt, never
// re-translated, when the server day changes.
type Schedule struct {
	CivilDay      time.Time `json:"civil_day"`
	OffsetMinutes int       `json:"offset_minutes"`
	Slots         []*Slot   `json:"slots"`
}

// ByLabel looks a slot up by its normalized "HH:MM" label.
func (s *Schedule) ByLabel(label string) (*Slot, bool) {
	for _, sl := range s.Slots {
		if sl.Label == label {
			return sl, true
		}
	}
	return nil, false
}

// Next returns the first unfired slot at or after now.
func (s *Schedule) Next(now time.Time) (*Slot, bool) {
	for _, sl := range s.Slots {
		if sl.Fired {
			continue
		}
		if !now.After(sl.At) {
			return sl, true
		}
	}
	return nil, false
}

// FiredCount is the number of slots that fired or were forfeited.
func (s *Schedule) FiredCount() int {
	n := 0
	for _, sl := range s.Slots {
		if sl.Fired {
			n++
		}
	}
	return n
}

// AllFired reports whether every slot has been consumed for the day.
func (s *Schedule) AllFired() bool {
	return s.FiredCount() == len(s.Slots)
}

// CivilTime maps a server instant back onto the civil wall clock.
func (s *Schedule) CivilTime(server time.Time) time.Time {
	return server.Add(-time.Duration(s.OffsetMinutes) * time.Minute)
}

// Tag is the correlation tag for a slot: "<civil day>_<label>".
func (s *Schedule) Tag(sl *Slot) string {
	return s.CivilDay.Format("2006-01-02") + "_" + sl.Label
}
