package save

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tycoon/internal/game"
	"tycoon/internal/market"
)

// Source reports where Load found the state.
type Source string

const (
	SourceLocal   Source = "local"
	SourceRemote  Source = "remote"
	SourceDefault Source = "default"
)

// SaveReport describes a save attempt. Errors are informational; a failed
// write leaves the game running in memory.
type SaveReport struct {
	SaveID    string `json:"save_id"`
	Bytes     int    `json:"bytes"`
	LocalErr  error  `json:"-"`
	RemoteErr error  `json:"-"`
	Remote    bool   `json:"remote"`
}

func (r SaveReport) OK() bool {
	return r.LocalErr == nil && r.RemoteErr == nil
}

// ChartSource supplies the market charts stored next to the state.
type ChartSource interface {
	Snapshot() market.Snapshot
}

// Persister writes the state to local then remote storage. Remote is optional.
type Persister struct {
	local  Backend
	remote Backend
	charts ChartSource
	key    string
	log    *slog.Logger
	now    func() time.Time
}

func NewPersister(local, remote Backend, key string, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{local: local, remote: remote, key: key, log: logger, now: time.Now}
}

// TrackCharts makes every Save include the charts of src.
func (p *Persister) TrackCharts(src ChartSource) {
	p.charts = src
}

// Save never returns an error; failures are logged and reported.
func (p *Persister) Save(ctx context.Context, st game.GameState) SaveReport {
	var rep SaveReport
	env := NewEnvelope(st, p.now())
	if p.charts != nil {
		snap := p.charts.Snapshot()
		env.Charts = &snap
	}
	blob, err := env.Marshal()
	if err != nil {
		p.log.Error("encode save failed", "err", err)
		rep.LocalErr = err
		return rep
	}
	rep.SaveID = env.SaveID
	rep.Bytes = len(blob)

	if p.local != nil {
		if err := p.local.Put(ctx, p.key, blob); err != nil {
			p.log.Error("local save failed", "backend", p.local.Name(), "key", p.key, "err", err)
			rep.LocalErr = err
		}
	}
	if p.remote != nil {
		rep.Remote = true
		if err := p.remote.Put(ctx, p.key, blob); err != nil {
			p.log.Warn("remote save failed", "backend", p.remote.Name(), "key", p.key, "err", err)
			rep.RemoteErr = err
		}
	}
	if rep.OK() {
		p.log.Debug("game saved", "key", p.key, "save_id", rep.SaveID, "bytes", rep.Bytes)
	}
	return rep
}

// Load returns the local save, then the remote one, then a fresh state.
func (p *Persister) Load(ctx context.Context, now time.Time) (game.GameState, Source) {
	env, src := p.LoadEnvelope(ctx, now)
	return env.State, src
}

// LoadEnvelope is Load with the save metadata and charts kept.
func (p *Persister) LoadEnvelope(ctx context.Context, now time.Time) (Envelope, Source) {
	if env, ok := p.loadFrom(ctx, p.local); ok {
		return env, SourceLocal
	}
	if env, ok := p.loadFrom(ctx, p.remote); ok {
		return env, SourceRemote
	}
	return Envelope{State: game.DefaultState(now)}, SourceDefault
}

func (p *Persister) loadFrom(ctx context.Context, b Backend) (Envelope, bool) {
	if b == nil {
		return Envelope{}, false
	}
	raw, err := b.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.log.Warn("load save failed", "backend", b.Name(), "key", p.key, "err", err)
		}
		return Envelope{}, false
	}
	env, err := Decode(raw)
	if err != nil {
		p.log.Error("corrupt save ignored", "backend", b.Name(), "key", p.key, "err", err)
		return Envelope{}, false
	}
	return env, true
}
