package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"

	"github.com/joho/godotenv"
)

// Live bar sources.
const (
	SourceRedis  = "redis"
	SourceReplay = "replay"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Symbol string

	// Strategy
	RSIWindow      int
	BuyRSI         float64
	SellRSI        float64
	StopLossPct    float64
	MinHoldMinutes int
	SlippageBps    float64
	FeePerTrade    float64
	StartCash      float64

	// Backtest
	DaysToTest int
	OutDir     string

	// Live loop
	LiveSource    string
	PollInterval  time.Duration
	StaleInterval time.Duration
	EmptyInterval time.Duration
	SessionEnd    string // "HH:MM" New York time

	// Infrastructure
	SQLitePath    string
	JournalPath   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MetricsAddr   string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads an optional .env file, then configuration from environment
// variables with defaults for the RSI 20/65 strategy on NVDA.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	var p parser
	c := &Config{
		Symbol: getEnv("SYMBOL", "NVDA"),

		RSIWindow:      p.int("RSI_WINDOW", indicator.DefaultWindow),
		BuyRSI:         p.float("BUY_RSI", 20),
		SellRSI:        p.float("SELL_RSI", 65),
		StopLossPct:    p.float("STOP_LOSS_PCT", 0.02),
		MinHoldMinutes: p.int("MIN_HOLD_MINUTES", 5),
		SlippageBps:    p.float("SLIPPAGE_BPS", 2),
		FeePerTrade:    p.float("FEE_PER_TRADE", 0),
		StartCash:      p.float("START_CASH", 10000),

		DaysToTest: p.int("DAYS_TO_TEST", 5),
		OutDir:     getEnv("OUT_DIR", "out"),

		LiveSource:    strings.ToLower(getEnv("LIVE_SOURCE", SourceRedis)),
		PollInterval:  p.duration("POLL_INTERVAL", 5*time.Second),
		StaleInterval: p.duration("STALE_INTERVAL", 3*time.Second),
		EmptyInterval: p.duration("EMPTY_INTERVAL", 5*time.Second),
		SessionEnd:    getEnv("SESSION_END", "16:01"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Params builds the engine parameters.
func (c *Config) Params() execution.Params {
	return execution.Params{
		BuyThreshold:   c.BuyRSI,
		SellThreshold:  c.SellRSI,
		StopLossPct:    c.StopLossPct,
		MinHoldMinutes: c.MinHoldMinutes,
		SlippageBps:    c.SlippageBps,
		FeePerTrade:    c.FeePerTrade,
		StartCash:      c.StartCash,
	}
}

// SessionEndFunc parses SessionEnd into the live driver's stop boundary.
func (c *Config) SessionEndFunc() (func(time.Time) time.Time, error) {
	return markethours.SessionEndAt(c.SessionEnd)
}

// Validate checks ranges after flags have been applied.
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return errors.New("config: SYMBOL is empty")
	}
	if c.RSIWindow < 1 {
		return fmt.Errorf("config: RSI_WINDOW %d must be at least 1", c.RSIWindow)
	}
	if c.DaysToTest < 1 {
		return fmt.Errorf("config: DAYS_TO_TEST %d must be at least 1", c.DaysToTest)
	}
	if c.PollInterval <= 0 || c.StaleInterval <= 0 || c.EmptyInterval <= 0 {
		return errors.New("config: poll intervals must be positive")
	}
	if c.LiveSource != SourceRedis && c.LiveSource != SourceReplay {
		return fmt.Errorf("config: LIVE_SOURCE %q is not %q or %q", c.LiveSource, SourceRedis, SourceReplay)
	}
	if _, err := c.SessionEndFunc(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// parser collects conversion errors so Load reports all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		return fallback
	}
	return f
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
