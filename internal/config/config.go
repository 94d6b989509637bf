// Package config reads client and server settings from command line flags.
// Every flag defaults to a GOPHGRADE_* environment variable when it is set.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client holds settings of the correction client
type Client struct {
	ServerURL     string
	DBPath        string
	LogLevel      slog.Level
	FlushInterval time.Duration // период отправки изменений
	CheckInterval time.Duration // период проверки итогового отзыва
	Debounce      time.Duration // минимальный интервал между проверками отзыва
	ShowVersion   bool
}

// Server holds settings of the sync server
type Server struct {
	Addr        string
	DBPath      string
	JWTSecret   string
	ImportPath  string
	LogLevel    slog.Level
	TokenTTL    time.Duration
	LoginRate   int // попыток входа в минуту с одного адреса
	ShowVersion bool
}

// ParseClient parses client flags from args
func ParseClient(fs *flag.FlagSet, args []string) (*Client, error) {
	cfg := &Client{}
	var level string

	fs.StringVar(&cfg.ServerURL, "server", getenv("GOPHGRADE_SERVER", "http://localhost:8080"), "Server URL")
	fs.StringVar(&cfg.DBPath, "db", getenv("GOPHGRADE_DB", "gophgrade-client.db"), "Path to local database")
	fs.StringVar(&level, "log-level", getenv("GOPHGRADE_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", getenvDuration("GOPHGRADE_FLUSH_INTERVAL", 5*time.Second), "Interval between change flushes")
	fs.DurationVar(&cfg.CheckInterval, "check-interval", getenvDuration("GOPHGRADE_CHECK_INTERVAL", time.Second), "Interval between summary checks")
	fs.DurationVar(&cfg.Debounce, "debounce", getenvDuration("GOPHGRADE_DEBOUNCE", 2*time.Second), "Minimum interval between summary checks")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LogLevel, err = parseLevel(level); err != nil {
		return nil, err
	}
	if cfg.FlushInterval <= 0 || cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("intervals must be positive")
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("debounce must not be negative")
	}
	return cfg, nil
}

// ParseServer parses server flags from args
func ParseServer(fs *flag.FlagSet, args []string) (*Server, error) {
	cfg := &Server{}
	var level string

	fs.StringVar(&cfg.Addr, "addr", getenv("GOPHGRADE_ADDR", ":8080"), "Listen address")
	fs.StringVar(&cfg.DBPath, "db", getenv("GOPHGRADE_DB", "gophgrade-server.db"), "Path to SQLite database")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getenv("GOPHGRADE_JWT_SECRET", ""), "Secret for signing tokens")
	fs.StringVar(&cfg.ImportPath, "import", "", "Import a task bundle (JSON) and exit")
	fs.StringVar(&level, "log-level", getenv("GOPHGRADE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", getenvDuration("GOPHGRADE_TOKEN_TTL", 24*time.Hour), "Token lifetime")
	fs.IntVar(&cfg.LoginRate, "login-rate", getenvInt("GOPHGRADE_LOGIN_RATE", 10), "Login attempts per minute per address")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LogLevel, err = parseLevel(level); err != nil {
		return nil, err
	}
	if cfg.ShowVersion || cfg.ImportPath != "" {
		return cfg, nil
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (-jwt-secret or GOPHGRADE_JWT_SECRET)")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
