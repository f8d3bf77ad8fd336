// Package clock resolves the wall-clock time-of-day the scheduler matches
// tasks against.
//
// The source prefers an external time provider (for hosts whose "day" is not
// the system clock's day) and falls back to the local system clock whenever
// the provider is unavailable or returns something unparsable. Callers never
// see an error from Now(); a bad provider degrades to system time.
package clock

import (
	"fmt"
	"strings"
	"time"

	logx "dailyrun/pkg/logx"
)

// TimeOfDay is a wall-clock time without date or timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// At builds a TimeOfDay from components. It does not validate ranges;
// use Parse for untrusted input.
func At(hour, minute, second int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}
}

// FromTime extracts the time-of-day from a time.Time.
func FromTime(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// MinuteKey formats the time at minute granularity ("HH:MM").
func (t TimeOfDay) MinuteKey() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SecondsOfDay returns the offset from midnight in seconds.
func (t TimeOfDay) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// SameMinute reports whether both values fall in the same hour and minute,
// ignoring seconds.
func (t TimeOfDay) SameMinute(o TimeOfDay) bool {
	return t.Hour == o.Hour && t.Minute == o.Minute
}

// Parse accepts exactly four fixed-width encodings: "HH:MM", "HHMM",
// "HH:MM:SS" and "HHMMSS". Anything else is an error.
func Parse(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)

	var layout string
	switch {
	case len(s) == 5 && s[2] == ':':
		layout = "15:04"
	case len(s) == 4 && allDigits(s):
		layout = "1504"
	case len(s) == 8 && s[2] == ':' && s[5] == ':':
		layout = "15:04:05"
	case len(s) == 6 && allDigits(s):
		layout = "150405"
	default:
		return TimeOfDay{}, fmt.Errorf("unrecognized time format %q", raw)
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return FromTime(t), nil
}

// ParseHHMM parses the "HH:MM" form only. Task schedule times use this.
func ParseHHMM(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	return Parse(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Provider supplies a textual time-of-day reading from outside the process.
//
// Read returns the raw string; "unavailable" is signalled by an error, an
// empty string, or a value equal to the provider's own sentinel. Read must
// return quickly — it is called from the scheduler's poll tick.
type Provider interface {
	Read() (string, error)
	// Sentinel is the provider's "not resolved" placeholder value, if any.
	Sentinel() string
}

// Source produces the current time-of-day, preferring the external provider.
type Source struct {
	provider Provider
	now      func() time.Time // test hook; defaults to time.Now
	log      logx.Logger
}

// NewSource builds a Source. provider may be nil, in which case Now() always
// uses the system clock.
func NewSource(provider Provider, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{provider: provider, now: time.Now, log: log}
}

// NewSystemSource returns a Source with no external provider.
func NewSystemSource() *Source {
	return &Source{now: time.Now, log: logx.Nop()}
}

// Now returns the current time-of-day. Provider failures of any kind fall
// back to the local system clock; Now never fails.
func (s *Source) Now() TimeOfDay {
	if s.provider == nil {
		return FromTime(s.now())
	}

	raw, err := s.provider.Read()
	if err != nil {
		s.log.Debug("time provider unavailable, using system clock", logx.Err(err))
		return FromTime(s.now())
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == s.provider.Sentinel() {
		s.log.Debug("time provider not resolved, using system clock")
		return FromTime(s.now())
	}

	t, err := Parse(raw)
	if err != nil {
		s.log.Debug("time provider value unparsable, using system clock",
			logx.String("value", raw), logx.Err(err))
		return FromTime(s.now())
	}
	return t
}
