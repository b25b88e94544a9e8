// Package engine assembles one player's session: storage, game service,
// market, ads and the periodic timers that drive them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tycoon/internal/ads"
	"tycoon/internal/cli"
	"tycoon/internal/clock"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/market"
	"tycoon/internal/save"
	"tycoon/internal/scheduler"
	"tycoon/internal/syncq"
)

const shutdownTimeout = 10 * time.Second

type Option func(*options)

type options struct {
	clk      clock.Clock
	provider ads.Provider
	store    ads.Store
	remote   save.Backend
	seed     int64
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

func WithAdProvider(p ads.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithRemote overrides the remote backend normally built from
// TYCOON_REMOTE_DATABASE_URL.
func WithRemote(b save.Backend) Option {
	return func(o *options) { o.remote = b }
}

func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Engine is a loaded game session. Create it with Open and release it with
// Close.
type Engine struct {
	cfg       config.GameConfig
	log       *slog.Logger
	clk       clock.Clock
	game      *game.Service
	market    *market.Market
	ads       *ads.Manager
	outbox    *cli.Outbox
	persister *save.Persister
	tasks     *scheduler.Group
	closers   []func()

	loaded  save.Source
	offline game.TickResult
}

// Open loads the saved game, credits the offline gap and prepares the timers.
func Open(ctx context.Context, cfg config.GameConfig, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clk: clock.Real{}, store: ads.SimulatedStore{}, seed: time.Now().UnixNano()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := save.ValidateKey(cfg.SaveKey); err != nil {
		return nil, fmt.Errorf("save key: %w", err)
	}
	if err := cli.EnsureHome(cfg.Home); err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}

	e := &Engine{cfg: cfg, log: logger, clk: o.clk}
	local, err := e.openLocal()
	if err != nil {
		e.Close()
		return nil, err
	}
	remote := o.remote
	if remote == nil && cfg.RemoteDatabaseURL != "" {
		pg, err := save.ConnectPostgres(ctx, cfg.RemoteDatabaseURL)
		if err != nil {
			logger.Warn("remote save store unavailable", "err", err)
		} else {
			e.closers = append(e.closers, pg.Close)
			remote = pg
		}
	}
	e.persister = save.NewPersister(local, remote, cfg.SaveKey, logger)

	catalog := game.DefaultCatalog()
	e.market = market.New(catalog.AssetIDs(), cfg.Volatility, market.WithSeed(o.seed), market.WithNow(o.clk.Now))
	e.game = game.NewService(catalog, o.clk, logger,
		game.WithMaxCatchUp(cfg.MaxCatchUp),
		game.WithPriceSource(e.market),
		game.WithRandSeed(o.seed),
	)

	e.persister.TrackCharts(e.market)

	env, src := e.persister.LoadEnvelope(ctx, o.clk.Now())
	if err := e.game.Restore(env.State); err != nil {
		logger.Error("saved game rejected, starting fresh", "source", string(src), "err", err)
		e.game.Reset()
		src = save.SourceDefault
	} else if env.Charts != nil {
		e.market.Restore(*env.Charts)
	}
	e.loaded = src
	e.offline = e.game.Tick()
	if e.offline.EarnedMicros > 0 {
		logger.Info("offline earnings credited",
			"elapsed_ms", e.offline.ElapsedMs,
			"earned", game.FormatCoins(e.offline.EarnedMicros),
			"capped", e.offline.Capped,
		)
	}
	e.catchUpCharts(e.offline.ElapsedMs)

	var reporter ads.Reporter
	if cfg.APIBaseURL != "" {
		client := cli.NewClient(cfg.APIBaseURL)
		client.AnalyticsKey = cfg.AnalyticsKey
		queue, err := syncq.New(cfg.Home, syncq.DefaultLimit)
		if err != nil {
			logger.Warn("report queue unavailable", "err", err)
		}
		e.outbox = cli.NewOutbox(client, queue, logger)
		reporter = e.outbox
	}
	provider := o.provider
	if provider == nil {
		provider = ads.NewSimulatedProvider(cfg.AdFillRate, cfg.AdLatency, o.seed)
	}
	e.ads = ads.NewManager(provider, o.store, e.game, reporter, cfg.PlayerID, logger)
	e.ads.SetAppIDs(map[string]string{
		"admob":      cfg.AdMobAppID,
		"ironsource": cfg.IronSourceAppKey,
	})

	if err := e.registerTasks(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// catchUpCharts walks the market once per chart interval missed while the
// game was closed, at most one full series.
func (e *Engine) catchUpCharts(elapsedMs int64) {
	every := e.cfg.ChartEvery.Milliseconds()
	if every <= 0 || elapsedMs < every {
		return
	}
	steps := min(elapsedMs/every, int64(market.SeriesLength))
	for i := int64(0); i < steps; i++ {
		e.market.Walk()
	}
}

func (e *Engine) openLocal() (save.Backend, error) {
	switch e.cfg.LocalBackend {
	case "file":
		fb, err := save.NewFileBackend(e.cfg.SaveDir())
		if err != nil {
			return nil, err
		}
		return fb, nil
	default:
		db, err := save.OpenSQLite(e.cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() {
			if err := db.Close(); err != nil {
				e.log.Warn("close sqlite", "err", err)
			}
		})
		return db, nil
	}
}

func (e *Engine) registerTasks() error {
	g := scheduler.New(e.log)
	err := errors.Join(
		g.Add("idle_tick", e.cfg.TickEvery, e.tickTask),
		g.Add("booster_sweep", e.cfg.BoosterSweepEvery, e.sweepTask),
		g.Add("autosave", e.cfg.AutosaveEvery, e.saveTask),
		g.Add("chart_walk", e.cfg.ChartEvery, e.chartTask),
	)
	if err != nil {
		return err
	}
	e.tasks = g
	return nil
}

func (e *Engine) tickTask(context.Context) error {
	e.game.Tick()
	return nil
}

func (e *Engine) sweepTask(context.Context) error {
	for _, kind := range e.game.SweepBoosters() {
		e.log.Info("booster expired", "kind", string(kind))
	}
	return nil
}

func (e *Engine) saveTask(ctx context.Context) error {
	rep := e.persister.Save(ctx, e.game.Snapshot())
	if e.outbox != nil {
		if n, err := e.outbox.Flush(ctx); n > 0 || err != nil {
			e.log.Debug("queued reports flushed", "sent", n, "err", err)
		}
	}
	return rep.LocalErr
}

func (e *Engine) chartTask(context.Context) error {
	e.market.Walk()
	return nil
}

// Run drives the timers until ctx is cancelled, then ticks and saves once
// more.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("session started",
		"save_key", e.cfg.SaveKey,
		"backend", e.cfg.LocalBackend,
		"loaded_from", string(e.loaded),
	)
	err := e.tasks.Run(ctx)
	e.Shutdown()
	return err
}

// RunOnce fires every timer a single time.
func (e *Engine) RunOnce(ctx context.Context) error {
	return e.tasks.RunOnce(ctx)
}

// Shutdown performs the final tick and save.
func (e *Engine) Shutdown() save.SaveReport {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	e.game.Tick()
	rep := e.persister.Save(ctx, e.game.Snapshot())
	e.log.Info("session saved", "save_id", rep.SaveID, "ok", rep.OK())
	return rep
}

func (e *Engine) Save(ctx context.Context) save.SaveReport {
	return e.persister.Save(ctx, e.game.Snapshot())
}

// Reset wipes progress and immediately saves the fresh state.
func (e *Engine) Reset(ctx context.Context) save.SaveReport {
	e.game.Reset()
	return e.Save(ctx)
}

func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *Engine) Game() *game.Service {
	return e.game
}

func (e *Engine) Market() *market.Market {
	return e.market
}

func (e *Engine) Ads() *ads.Manager {
	return e.ads
}

// Outbox is nil when no backend URL is configured.
func (e *Engine) Outbox() *cli.Outbox {
	return e.outbox
}

func (e *Engine) Config() config.GameConfig {
	return e.cfg
}

func (e *Engine) Tasks() []scheduler.Task {
	return e.tasks.Tasks()
}

// Loaded reports where the session state came from and what the offline
// catch-up credited.
func (e *Engine) Loaded() (save.Source, game.TickResult) {
	return e.loaded, e.offline
}
