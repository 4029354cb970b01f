package app

import "time"

// Config contains the runtime configuration loaded from environment
// variables. The auto-close policy has its own loader in the
// attendance package.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Session store selection: DatabaseURL wins, then SQLitePath, then
	// the in-memory dev store.
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int32
	DBMinConns  int32

	// DirectoryFile is a TOML card-to-member mapping used when no
	// database is configured.
	DirectoryFile string

	// WebhookURL enables Discord notifications when set.
	WebhookURL string

	// TapDebounce suppresses duplicate taps of the same card.
	TapDebounce time.Duration

	// TapWindowStart/End ("HH:MM") reject opening taps outside the
	// window. Both must be set to take effect.
	TapWindowStart string
	TapWindowEnd   string

	// If true, /readyz returns 503 unless Postgres is configured and
	// reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("ATTEND_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("ATTEND_LOG_LEVEL", "info"),
		LogFormat: EnvString("ATTEND_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("ATTEND_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ATTEND_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ATTEND_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ATTEND_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("ATTEND_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ATTEND_DATABASE_URL", ""),
		SQLitePath:  EnvString("ATTEND_SQLITE_PATH", ""),
		DBMaxConns:  EnvInt32("ATTEND_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ATTEND_DB_MIN_CONNS", 0),

		DirectoryFile: EnvString("ATTEND_DIRECTORY_FILE", ""),

		WebhookURL: EnvString("ATTEND_DISCORD_WEBHOOK_URL", ""),

		TapDebounce:    EnvDuration("ATTEND_TAP_DEBOUNCE", 2*time.Second),
		TapWindowStart: EnvString("ATTEND_TAP_WINDOW_START", ""),
		TapWindowEnd:   EnvString("ATTEND_TAP_WINDOW_END", ""),

		ReadinessRequireDB: EnvBool("ATTEND_READINESS_REQUIRE_DB", false),
	}
}
