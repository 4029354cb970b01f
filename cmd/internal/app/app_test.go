package app

import (
	"errors"
	"testing"
	"time"

	"attend/cmd/internal/attendance"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.TapDebounce != 2*time.Second {
		t.Fatalf("TapDebounce=%v", cfg.TapDebounce)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat=%q", cfg.LogFormat)
	}
	if cfg.ReadinessRequireDB {
		t.Fatalf("ReadinessRequireDB should default to false")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ATTEND_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("ATTEND_TAP_DEBOUNCE", "0s")
	t.Setenv("ATTEND_DB_MAX_CONNS", "4")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.TapDebounce != 0 {
		t.Fatalf("TapDebounce=%v want 0 (disabled)", cfg.TapDebounce)
	}
	if cfg.DBMaxConns != 4 {
		t.Fatalf("DBMaxConns=%d", cfg.DBMaxConns)
	}
}

func TestParseTapWindow(t *testing.T) {
	t.Parallel()

	t.Run("unset", func(t *testing.T) {
		t.Parallel()
		start, end, err := parseTapWindow(Config{})
		if err != nil || start != nil || end != nil {
			t.Fatalf("start=%v end=%v err=%v", start, end, err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		start, end, err := parseTapWindow(Config{TapWindowStart: "07:30", TapWindowEnd: "19:00"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if start == nil || start.Hour != 7 || start.Minute != 30 {
			t.Fatalf("start=%v", start)
		}
		if end == nil || end.Hour != 19 || end.Minute != 0 {
			t.Fatalf("end=%v", end)
		}
	})

	t.Run("half set", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseTapWindow(Config{TapWindowStart: "07:30"})
		if !errors.Is(err, attendance.ErrConfig) {
			t.Fatalf("err=%v want ErrConfig", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseTapWindow(Config{TapWindowStart: "7:3", TapWindowEnd: "25:99"})
		if !errors.Is(err, attendance.ErrConfig) {
			t.Fatalf("err=%v want ErrConfig", err)
		}
	})
}

func TestEnvDurationAllowsZero(t *testing.T) {
	t.Setenv("ATTEND_TEST_DURATION", "0s")
	if got := EnvDuration("ATTEND_TEST_DURATION", 2*time.Second); got != 0 {
		t.Fatalf("EnvDuration=%v want 0", got)
	}

	t.Setenv("ATTEND_TEST_DURATION", "-5s")
	if got := EnvDuration("ATTEND_TEST_DURATION", 2*time.Second); got != 2*time.Second {
		t.Fatalf("EnvDuration=%v want default for negative", got)
	}
}
