package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"tycoon/internal/market"
)

type APIConfig struct {
	Addr           string        `env:"TYCOON_API_ADDR" envDefault:":8080"`
	Port           string        `env:"PORT"`
	LogCapacity    int           `env:"TYCOON_LOG_CAPACITY" envDefault:"200"`
	ECPMCapacity   int           `env:"TYCOON_ECPM_CAPACITY" envDefault:"200"`
	RequestTimeout time.Duration `env:"TYCOON_API_TIMEOUT" envDefault:"60s"`
}

// GameConfig drives the player-side binaries (CLI, TUI, worker).
type GameConfig struct {
	Home              string        `env:"TYCOON_HOME"`
	SaveKey           string        `env:"TYCOON_SAVE_KEY" envDefault:"default"`
	LocalBackend      string        `env:"TYCOON_LOCAL_BACKEND" envDefault:"sqlite"`
	RemoteDatabaseURL string        `env:"TYCOON_REMOTE_DATABASE_URL"`
	TickEvery         time.Duration `env:"TYCOON_TICK_EVERY" envDefault:"1s"`
	BoosterSweepEvery time.Duration `env:"TYCOON_BOOSTER_SWEEP_EVERY" envDefault:"1s"`
	AutosaveEvery     time.Duration `env:"TYCOON_AUTOSAVE_EVERY" envDefault:"30s"`
	ChartEvery        time.Duration `env:"TYCOON_CHART_EVERY" envDefault:"4s"`
	MaxCatchUp        time.Duration `env:"TYCOON_MAX_CATCH_UP" envDefault:"8h"`
	Volatility        string        `env:"TYCOON_VOLATILITY" envDefault:"normal"`
	AdFillRate        float64       `env:"TYCOON_AD_FILL_RATE" envDefault:"0.85"`
	AdLatency         time.Duration `env:"TYCOON_AD_LATENCY" envDefault:"1500ms"`
	APIBaseURL        string        `env:"TYCOON_API_BASE_URL" envDefault:"http://localhost:8080"`
	PlayerID          string        `env:"TYCOON_PLAYER_ID"`
	AdMobAppID        string        `env:"TYCOON_ADMOB_APP_ID"`
	IronSourceAppKey  string        `env:"TYCOON_IRONSOURCE_APP_KEY"`
	AnalyticsKey      string        `env:"TYCOON_ANALYTICS_KEY"`
	RunOnce           bool          `env:"TYCOON_WORKER_RUN_ONCE"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse api config: %w", err)
	}
	if p := strings.TrimSpace(cfg.Port); p != "" {
		if !strings.HasPrefix(p, ":") {
			p = ":" + p
		}
		cfg.Addr = p
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("TYCOON_API_TIMEOUT must be > 0")
	}
	if cfg.LogCapacity <= 0 {
		return cfg, fmt.Errorf("TYCOON_LOG_CAPACITY must be > 0")
	}
	if cfg.ECPMCapacity <= 0 {
		return cfg, fmt.Errorf("TYCOON_ECPM_CAPACITY must be > 0")
	}
	return cfg, nil
}

func LoadGameFromEnv() (GameConfig, error) {
	var cfg GameConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse game config: %w", err)
	}
	if strings.TrimSpace(cfg.Home) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.Home = filepath.Join(home, ".tycoon")
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.Volatility = market.NormalizeVolatility(cfg.Volatility)
	cfg.LocalBackend = strings.ToLower(strings.TrimSpace(cfg.LocalBackend))
	if strings.TrimSpace(cfg.PlayerID) == "" {
		cfg.PlayerID = cfg.SaveKey
	}

	switch cfg.LocalBackend {
	case "sqlite", "file":
	default:
		return cfg, fmt.Errorf("TYCOON_LOCAL_BACKEND must be sqlite or file, got %q", cfg.LocalBackend)
	}
	for name, d := range map[string]time.Duration{
		"TYCOON_TICK_EVERY":          cfg.TickEvery,
		"TYCOON_BOOSTER_SWEEP_EVERY": cfg.BoosterSweepEvery,
		"TYCOON_AUTOSAVE_EVERY":      cfg.AutosaveEvery,
		"TYCOON_CHART_EVERY":         cfg.ChartEvery,
	} {
		if d <= 0 {
			return cfg, fmt.Errorf("%s must be > 0", name)
		}
	}
	if cfg.MaxCatchUp < 0 {
		return cfg, fmt.Errorf("TYCOON_MAX_CATCH_UP must be >= 0")
	}
	if cfg.AdFillRate < 0 || cfg.AdFillRate > 1 {
		return cfg, fmt.Errorf("TYCOON_AD_FILL_RATE must be within [0, 1]")
	}
	return cfg, nil
}

// SQLitePath and SaveDir live under the profile home.
func (c GameConfig) SQLitePath() string {
	return filepath.Join(c.Home, "tycoon.db")
}

func (c GameConfig) SaveDir() string {
	return c.Home
}
