package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

var envKeys = []string{
	"SYMBOLS", "TIMEFRAMES", "REFRESH_INTERVAL", "RETENTION_BARS", "HISTORY_BARS",
	"DATA_SOURCE", "MOCK_SEED", "ANGEL_API_KEY", "ANGEL_CLIENT_CODE", "ANGEL_PASSWORD",
	"ANGEL_TOTP_SECRET", "SYMBOL_TOKENS", "SQLITE_PATH", "SQLITE_RECORD", "REDIS_ADDR",
	"REDIS_PASSWORD", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"ALERT_WEBHOOK_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, DefaultSymbols, cfg.Symbols)
	assert.Equal(t, []int{1, 3, 5, 15}, cfg.Timeframes)
	assert.Equal(t, time.Second, cfg.RefreshInterval)
	assert.Equal(t, 30, cfg.RetentionBars)
	assert.Equal(t, 120, cfg.HistoryBars)
	assert.Equal(t, SourceMock, cfg.DataSource)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.False(t, cfg.RecordSQLite)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMBOLS", " EURUSD , XAUUSD ,")
	t.Setenv("TIMEFRAMES", "5,15")
	t.Setenv("REFRESH_INTERVAL", "250ms")
	t.Setenv("RETENTION_BARS", "50")
	t.Setenv("HISTORY_BARS", "200")
	t.Setenv("DATA_SOURCE", "SQLite")
	t.Setenv("SQLITE_PATH", "data/bars.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, cfg.Symbols)
	assert.Equal(t, []int{5, 15}, cfg.Timeframes)
	assert.Equal(t, 250*time.Millisecond, cfg.RefreshInterval)
	assert.Equal(t, SourceSQLite, cfg.DataSource)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestFromEnv_ParseErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("TIMEFRAMES", "1,x")
	t.Setenv("REFRESH_INTERVAL", "soon")

	_, err := FromEnv()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "TIMEFRAMES"))
	assert.True(t, strings.Contains(err.Error(), "REFRESH_INTERVAL"))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Symbols:         []string{"EURUSD"},
			Timeframes:      []int{1},
			RefreshInterval: time.Second,
			RetentionBars:   30,
			HistoryBars:     120,
			DataSource:      SourceMock,
			HTTPAddr:        ":8000",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{"valid", func(*Config) {}, nil},
		{"no symbols", func(c *Config) { c.Symbols = nil }, []string{"Symbols"}},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }, []string{"Timeframes"}},
		{"non-positive timeframe", func(c *Config) { c.Timeframes = []int{1, 0} }, []string{"Timeframes[1]"}},
		{"zero interval", func(c *Config) { c.RefreshInterval = 0 }, []string{"RefreshInterval"}},
		{"history below retention", func(c *Config) { c.HistoryBars = 10 }, []string{"HistoryBars must be >= RetentionBars"}},
		{"unknown source", func(c *Config) { c.DataSource = "mt5" }, []string{"DataSource must be one of"}},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, []string{"LogFormat"}},
		{
			"smartapi without credentials",
			func(c *Config) { c.DataSource = SourceSmartAPI },
			[]string{"AngelAPIKey is required", "AngelTOTPSecret is required", "SymbolTokens is required"},
		},
		{"bad webhook url", func(c *Config) { c.AlertWebhookURL = "not a url" }, []string{"AlertWebhookURL must be a URL"}},
		{"telegram token without chat", func(c *Config) { c.TelegramBotToken = "t" }, []string{"TelegramChatID is required"}},
		{"sqlite without path", func(c *Config) { c.DataSource = SourceSQLite }, []string{"SQLitePath is required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a set variable, even an empty one.
	os.Unsetenv("SYMBOLS")
	os.Unsetenv("TIMEFRAMES")
	path := filepath.Join(t.TempDir(), "test.env")
	assert.NoError(t, os.WriteFile(path, []byte("SYMBOLS=GBPUSD\nTIMEFRAMES=3\n"), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"GBPUSD"}, cfg.Symbols)
	assert.Equal(t, []int{3}, cfg.Timeframes)
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
	assert.Equal(t, SourceMock, cfg.DataSource)
}
