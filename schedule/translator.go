package schedule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrBadLabel is returned for schedule entries that are not a valid
// time of day.
var ErrBadLabel = errors.New("schedule: bad time label")

var labelRE = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})(?::\d{1,2})?$`)

// Label is a civil time of day, minute resolution.
type Label struct {
	Hour   int
	Minute int
}

func (l Label) String() string {
	return fmt.Sprintf("%02d:%02d", l.Hour, l.Minute)
}

// ParseLabel accepts "HH:MM" or "HH:MM:SS". Anything after the first
// whitespace-separated token is ignored, as are seconds.
func ParseLabel(s string) (Label, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Label{}, fmt.Errorf("%w: empty", ErrBadLabel)
	}
	m := labelRE.FindStringSubmatch(fields[0])
	if m == nil {
		return Label{}, fmt.Errorf("%w: %q (expected HH:MM or HH:MM:SS)", ErrBadLabel, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return Label{}, fmt.Errorf("%w: %q out of range", ErrBadLabel, s)
	}
	return Label{Hour: h, Minute: mm}, nil
}

// Options configures a Translator.
type Options struct {
	Labels []string
	// Civil is the zone the labels are written in.
	Civil *time.Location
	// OverrideMinutes fixes the civil-to-server offset. When nil the
	// offset is estimated from the month of the civil day.
	OverrideMinutes *int
	SummerMonths    []time.Month
	SummerGMTHours  float64
	WinterGMTHours  float64
}

// DefaultSummerMonths approximates the broker's GMT+3 season.
var DefaultSummerMonths = []time.Month{
	time.March, time.April, time.May, time.June,
	time.July, time.August, time.September, time.October,
}

// Translator turns the civil schedule into server-clock instants.
type Translator struct {
	labels   []Label
	civil    *time.Location
	override *int
	summer   map[time.Month]bool
	summerH  float64
	winterH  float64
}

// NewTranslator validates the labels. Duplicate labels collapse into one
// slot.
func NewTranslator(opts Options) (*Translator, error) {
	if len(opts.Labels) == 0 {
		return nil, fmt.Errorf("%w: no schedule times", ErrBadLabel)
	}
	civil := opts.Civil
	if civil == nil {
		civil = time.UTC
	}

	seen := make(map[Label]bool)
	labels := make([]Label, 0, len(opts.Labels))
	for _, s := range opts.Labels {
		l, err := ParseLabel(s)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}

	months := opts.SummerMonths
	if months == nil {
		months = DefaultSummerMonths
	}
	summer := make(map[time.Month]bool, len(months))
	for _, m := range months {
		summer[m] = true
	}

	summerH, winterH := opts.SummerGMTHours, opts.WinterGMTHours
	if summerH == 0 && winterH == 0 {
		summerH, winterH = 3, 2
	}

	return &Translator{
		labels:   labels,
		civil:    civil,
		override: opts.OverrideMinutes,
		summer:   summer,
		summerH:  summerH,
		winterH:  winterH,
	}, nil
}

// Civil returns the zone the labels are written in.
func (t *Translator) Civil() *time.Location { return t.civil }

// ServerGMTHours is the assumed server offset from GMT on day.
func (t *Translator) ServerGMTHours(day time.Time) float64 {
	if t.summer[day.Month()] {
		return t.summerH
	}
	return t.winterH
}

// OffsetMinutes is the server-minus-civil offset for the civil day.
func (t *Translator) OffsetMinutes(day time.Time) int {
	if t.override != nil {
		return *t.override
	}
	y, m, d := day.Date()
	_, civilSec := time.Date(y, m, d, 12, 0, 0, 0, t.civil).Zone()
	return int(math.Round((t.ServerGMTHours(day)*3600 - float64(civilSec)) / 60))
}

// CivilDayFor is the civil date whose schedule belongs to serverDay: the
// civil day under server noon. With a positive offset server midnight
// comes first, so the civil clock still reads the previous date then.
func (t *Translator) CivilDayFor(serverDay time.Time) time.Time {
	y, m, d := serverDay.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	civil := noon.Add(-time.Duration(t.OffsetMinutes(noon)) * time.Minute)
	y, m, d = civil.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsAuto reports whether the offset is estimated rather than configured.
func (t *Translator) IsAuto() bool { return t.override == nil }

// Build translates every label for the civil day. Only the date of day is
// used. A label whose server instant crosses midnight lands on the
// adjacent server date; it is not pulled back onto the civil date.
func (t *Translator) Build(day time.Time) *Schedule {
	y, m, d := day.Date()
	offset := t.OffsetMinutes(day)
	shift := time.Duration(offset) * time.Minute

	slots := make([]*Slot, 0, len(t.labels))
	for _, l := range t.labels {
		wall := time.Date(y, m, d, l.Hour, l.Minute, 0, 0, time.UTC)
		slots = append(slots, &Slot{Label: l.String(), At: wall.Add(shift)})
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].At.Before(slots[j].At) })

	return &Schedule{
		CivilDay:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		OffsetMinutes: offset,
		Slots:         slots,
	}
}
