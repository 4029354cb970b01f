package attendance

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day, in the scheduler's
// configured location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time of day as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of this time of day on the given day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrConfig, s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrConfig, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrConfig, s)
	}

	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Config defines the auto-close policy.
type Config struct {
	// CutoffTime is the daily local time at which open sessions are
	// force-closed.
	CutoffTime TimeOfDay

	// DefaultAutoCloseDuration is the duration recorded for sessions the
	// sweep closes, instead of wall-clock elapsed time.
	DefaultAutoCloseDuration time.Duration

	// Location is the timezone in which CutoffTime is interpreted.
	Location *time.Location
}

// DefaultConfig returns the stock policy: close at 19:00 local time and
// record one hour for each force-closed session.
func DefaultConfig() Config {
	return Config{
		CutoffTime:               TimeOfDay{Hour: 19},
		DefaultAutoCloseDuration: time.Hour,
		Location:                 time.Local,
	}
}

// LoadConfigFromEnv loads the auto-close policy from environment variables.
//
// Optional:
//   - ATTEND_CUTOFF_TIME           ("HH:MM", default "19:00")
//   - ATTEND_AUTO_CLOSE_DURATION   (Go duration, default "1h")
//   - ATTEND_TIMEZONE              (IANA name, default local)
//
// Returns ErrConfig if any value is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("ATTEND_CUTOFF_TIME"); v != "" {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return Config{}, err
		}
		cfg.CutoffTime = t
	}

	if v := os.Getenv("ATTEND_AUTO_CLOSE_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: auto-close duration %q", ErrConfig, v)
		}
		cfg.DefaultAutoCloseDuration = d
	}

	if v := os.Getenv("ATTEND_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: timezone %q", ErrConfig, v)
		}
		cfg.Location = loc
	}

	return cfg, nil
}
