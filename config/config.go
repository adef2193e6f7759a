// Package config loads process configuration from the environment, with an
// optional .env file underneath it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Data source names accepted by DATA_SOURCE.
const (
	SourceMock     = "mock"
	SourceSmartAPI = "smartapi"
	SourceSQLite   = "sqlite"
)

// DefaultSymbols is the instrument set tracked when SYMBOLS is unset.
var DefaultSymbols = []string{
	"Volatility 10 Index",
	"Volatility 25 Index",
	"Volatility 50 Index",
	"Volatility 75 Index",
	"Volatility 100 Index",
	"Boom 500 Index",
	"Boom 1000 Index",
	"Crash 500 Index",
	"Crash 1000 Index",
	"XAUUSD",
}

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	Symbols         []string      `validate:"min=1,dive,required"`
	Timeframes      []int         `validate:"min=1,dive,gt=0"`
	RefreshInterval time.Duration `validate:"gt=0"`
	RetentionBars   int           `validate:"gte=1"`
	HistoryBars     int           `validate:"gtefield=RetentionBars"`

	DataSource string `validate:"oneof=mock smartapi sqlite"`
	MockSeed   int64

	// Angel One SmartAPI credentials
	AngelAPIKey     string `validate:"required_if=DataSource smartapi"`
	AngelClientCode string `validate:"required_if=DataSource smartapi"`
	AngelPassword   string `validate:"required_if=DataSource smartapi"`
	AngelTOTPSecret string `validate:"required_if=DataSource smartapi"`
	SymbolTokens    string `validate:"required_if=DataSource smartapi"`

	// Infrastructure
	SQLitePath    string `validate:"required_if=DataSource sqlite"`
	RecordSQLite  bool
	RedisAddr     string // empty disables the mirror
	RedisPassword string
	HTTPAddr      string `validate:"required"`

	// Signal alerts; each channel is enabled by its settings
	AlertWebhookURL  string `validate:"omitempty,url"`
	TelegramBotToken string `validate:"required_with=TelegramChatID"`
	TelegramChatID   string `validate:"required_with=TelegramBotToken"`

	LogLevel  string
	LogFormat string `validate:"omitempty,oneof=json console"`
}

// Load reads path (default ".env") when it exists, then the environment,
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	var errs error
	cfg := &Config{
		Symbols:          splitList(getEnv("SYMBOLS", "")),
		DataSource:       strings.ToLower(getEnv("DATA_SOURCE", SourceMock)),
		AngelAPIKey:      getEnv("ANGEL_API_KEY", ""),
		AngelClientCode:  getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:    getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret:  getEnv("ANGEL_TOTP_SECRET", ""),
		SymbolTokens:     getEnv("SYMBOL_TOKENS", ""),
		SQLitePath:       getEnv("SQLITE_PATH", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = append([]string(nil), DefaultSymbols...)
	}

	var err error
	if cfg.Timeframes, err = parseInts(getEnv("TIMEFRAMES", "1,3,5,15")); err != nil {
		errs = errors.Join(errs, fmt.Errorf("TIMEFRAMES: %w", err))
	}
	if cfg.RefreshInterval, err = time.ParseDuration(getEnv("REFRESH_INTERVAL", "1s")); err != nil {
		errs = errors.Join(errs, fmt.Errorf("REFRESH_INTERVAL: %w", err))
	}
	if cfg.RetentionBars, err = strconv.Atoi(getEnv("RETENTION_BARS", "30")); err != nil {
		errs = errors.Join(errs, fmt.Errorf("RETENTION_BARS: %w", err))
	}
	if cfg.HistoryBars, err = strconv.Atoi(getEnv("HISTORY_BARS", "120")); err != nil {
		errs = errors.Join(errs, fmt.Errorf("HISTORY_BARS: %w", err))
	}
	if cfg.MockSeed, err = strconv.ParseInt(getEnv("MOCK_SEED", "0"), 10, 64); err != nil {
		errs = errors.Join(errs, fmt.Errorf("MOCK_SEED: %w", err))
	}
	if cfg.RecordSQLite, err = strconv.ParseBool(getEnv("SQLITE_RECORD", "false")); err != nil {
		errs = errors.Join(errs, fmt.Errorf("SQLITE_RECORD: %w", err))
	}
	if errs != nil {
		return nil, errs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate asserts the config is sane. Every violation is reported.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var errs error
	for _, e := range verrs {
		errs = errors.Join(errs, fieldError(e))
	}
	return errs
}

func fieldError(e validator.FieldError) error {
	switch e.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Errorf("%s is required", e.Field())
	case "gtefield":
		return fmt.Errorf("%s must be >= %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", e.Field(), e.Param(), e.Value())
	case "url":
		return fmt.Errorf("%s must be a URL, got %q", e.Field(), e.Value())
	case "min":
		return fmt.Errorf("%s needs at least %s entries", e.Field(), e.Param())
	default:
		return fmt.Errorf("%s failed %s=%s (got %v)", e.Namespace(), e.Tag(), e.Param(), e.Value())
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
