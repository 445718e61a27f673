package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/options_alert_bot/internal/domain"
	"github.com/vitos/options_alert_bot/internal/usecase"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type MarketConfig struct {
	Symbols             []string `yaml:"symbols"`
	Timezone            string   `yaml:"timezone"`
	SweepBatchSize      int      `yaml:"sweep_batch_size"`
	SweepBatchPauseMs   int      `yaml:"sweep_batch_pause_ms"`
	SweepMaxConcurrency int      `yaml:"sweep_max_concurrency"`
	MonitorIntervalSec  int      `yaml:"monitor_interval_sec"`
	SnapshotCacheSec    int      `yaml:"snapshot_cache_sec"`
}

func (m MarketConfig) BatchPause() time.Duration {
	return time.Duration(m.SweepBatchPauseMs) * time.Millisecond
}

func (m MarketConfig) MonitorInterval() time.Duration {
	return time.Duration(m.MonitorIntervalSec) * time.Second
}

func (m MarketConfig) SnapshotTTL() time.Duration {
	return time.Duration(m.SnapshotCacheSec) * time.Second
}

type TradingConfig struct {
	EntryCostRatio float64                                  `yaml:"entry_cost_ratio"`
	StopLossRatio  float64                                  `yaml:"stop_loss_ratio"`
	Styles         map[domain.TradeStyle]usecase.StyleParams `yaml:"styles"`
}

type SchwabConfig struct {
	BaseURL     string `yaml:"base_url"`
	AppKey      string `yaml:"app_key"`
	AppSecret   string `yaml:"app_secret"`
	RedirectURI string `yaml:"redirect_uri"`
	TokenFile   string `yaml:"token_file"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	UseStream   bool   `yaml:"use_stream"`
	StreamURL   string `yaml:"stream_url"`
}

func (s SchwabConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

func (t TelegramConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

type StorageConfig struct {
	TradeLogPath string `yaml:"trade_log_path"`
	EventsDBPath string `yaml:"events_db_path"`
}

type ScheduleConfig struct {
	SweepSpec     string `yaml:"sweep_spec"`
	OpenAlertSpec string `yaml:"open_alert_spec"`
	ReportSpec    string `yaml:"report_spec"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Market   MarketConfig   `yaml:"market"`
	Trading  TradingConfig  `yaml:"trading"`
	Schwab   SchwabConfig   `yaml:"schwab"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// DefaultSymbols is the stock watch universe: index ETFs plus the large
// caps with liquid weekly options.
func DefaultSymbols() []string {
	return []string{
		"QQQ", "SPY", "IWM", "PG", "PEP", "AAPL", "MSFT", "NVDA", "TSLA", "META", "AMZN", "GOOGL",
		"NFLX", "LLY", "COIN", "MSTR", "AMD", "AVGO", "ARM", "CRWD", "PANW", "CRM", "BA", "COST",
		"HD", "ADBE", "SNOW", "LULU", "UNH", "CAT", "ANF", "DELL", "DE", "MDB", "GLD", "PDD",
		"ORCL", "TGT", "FDX", "AXP", "CMG", "NKE", "BABA", "WMT", "ROKU",
	}
}

func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Encoding: "json"},
		Market: MarketConfig{
			Symbols:             DefaultSymbols(),
			Timezone:            "America/New_York",
			SweepBatchSize:      5,
			SweepBatchPauseMs:   500,
			SweepMaxConcurrency: 10,
			MonitorIntervalSec:  30,
			SnapshotCacheSec:    10,
		},
		Trading: TradingConfig{
			EntryCostRatio: 0.03,
			StopLossRatio:  0.50,
			Styles:         usecase.DefaultStyleParams(),
		},
		Schwab: SchwabConfig{
			BaseURL:     "https://api.schwabapi.com",
			RedirectURI: "https://127.0.0.1:8182",
			TokenFile:   "data/schwab_tokens.json",
			TimeoutSec:  15,
			StreamURL:   "wss://stream.schwabapi.com/ws",
		},
		Telegram: TelegramConfig{
			Enabled:    true,
			TimeoutSec: 10,
		},
		Storage: StorageConfig{
			TradeLogPath: "data/trading_performance.json",
			EventsDBPath: "data/events.db",
		},
		Schedule: ScheduleConfig{
			SweepSpec:     "*/5 9-16 * * 1-5",
			OpenAlertSpec: "30 9 * * 1-5",
			ReportSpec:    "5 16 * * 1-5",
		},
	}
}

// Load reads the yaml config at path over the defaults, then applies
// environment overrides. A missing file yields the defaults, so the bot
// can run from environment variables alone.
func Load(path string) (*Config, error) {
	// .env is optional, ignore a miss
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv resolves secrets and deployment overrides. Environment
// variables win over the yaml file; the secrets.json fallback mirrors
// the deployment layout where credentials live next to the binary.
func (c *Config) applyEnv() {
	if v := getSecret("telegram_token"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getSecret("telegram_chat_id"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := getSecret("SCHWAB_CLIENT_ID"); v != "" {
		c.Schwab.AppKey = v
	}
	if v := getSecret("SCHWAB_CLIENT_SECRET"); v != "" {
		c.Schwab.AppSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// getSecret looks a key up in the environment first, then in
// secrets.json (path overridable via SECRETS_FILE).
func getSecret(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	path := os.Getenv("SECRETS_FILE")
	if path == "" {
		path = "secrets.json"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var secrets map[string]string
	if err := json.Unmarshal(b, &secrets); err != nil {
		return ""
	}
	return secrets[key]
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	if c.Market.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep_batch_size must be positive, got %d", c.Market.SweepBatchSize)
	}
	if c.Market.SweepMaxConcurrency <= 0 {
		return fmt.Errorf("sweep_max_concurrency must be positive, got %d", c.Market.SweepMaxConcurrency)
	}
	if c.Market.MonitorIntervalSec <= 0 {
		return fmt.Errorf("monitor_interval_sec must be positive, got %d", c.Market.MonitorIntervalSec)
	}
	if c.Market.SnapshotCacheSec < 0 {
		return fmt.Errorf("snapshot_cache_sec cannot be negative, got %d", c.Market.SnapshotCacheSec)
	}
	if c.Trading.EntryCostRatio <= 0 || c.Trading.EntryCostRatio > 1 {
		return fmt.Errorf("entry_cost_ratio must be in (0,1], got %g", c.Trading.EntryCostRatio)
	}
	if c.Trading.StopLossRatio <= 0 || c.Trading.StopLossRatio >= 1 {
		return fmt.Errorf("stop_loss_ratio must be in (0,1), got %g", c.Trading.StopLossRatio)
	}
	for style, params := range c.Trading.Styles {
		if !style.Valid() {
			return fmt.Errorf("unknown trade style %q in config", style)
		}
		if params.RVOLThreshold <= 0 {
			return fmt.Errorf("style %s: rvol_threshold must be positive", style)
		}
		if params.RewardMultiplier <= 0 {
			return fmt.Errorf("style %s: reward_multiplier must be positive", style)
		}
	}
	if c.Storage.TradeLogPath == "" {
		return fmt.Errorf("trade_log_path not set")
	}
	return nil
}
