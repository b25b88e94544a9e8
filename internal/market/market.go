// Package market simulates the chart each investment shows. Factors are
// multiplicative on the catalog price and only affect sell refunds.
package market

import (
	"fmt"
	"math"
	mathrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	SeriesLength = 64
	MinFactor    = 0.25
	MaxFactor    = 4.0
)

type Regime string

const (
	RegimeBear    Regime = "bear"
	RegimeNeutral Regime = "neutral"
	RegimeBull    Regime = "bull"
)

var Volatilities = []string{"calm", "normal", "wild"}

type Point struct {
	At     time.Time `json:"at"`
	Factor float64   `json:"factor"`
}

type chart struct {
	factor float64
	anchor float64
	points []Point
}

// Market holds one chart per asset. It is safe for concurrent use.
type Market struct {
	mu      sync.Mutex
	params  dynamics
	regime  Regime
	charts  map[string]*chart
	rand    *mathrand.Rand
	nowFunc func() time.Time
}

type Option func(*Market)

func WithSeed(seed int64) Option {
	return func(m *Market) { m.rand = mathrand.New(mathrand.NewSource(seed)) }
}

func WithNow(now func() time.Time) Option {
	return func(m *Market) { m.nowFunc = now }
}

func New(assetIDs []string, volatility string, opts ...Option) *Market {
	m := &Market{
		params:  volatilityParams(volatility),
		regime:  RegimeNeutral,
		charts:  make(map[string]*chart, len(assetIDs)),
		rand:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	now := m.nowFunc()
	for _, id := range assetIDs {
		m.charts[id] = &chart{
			factor: 1,
			anchor: 1,
			points: []Point{{At: now, Factor: 1}},
		}
	}
	return m
}

// ChartState is the persisted form of one asset chart.
type ChartState struct {
	Factor float64 `json:"factor"`
	Anchor float64 `json:"anchor"`
	Points []Point `json:"points"`
}

// Snapshot is the persisted form of the whole market.
type Snapshot struct {
	Regime Regime                `json:"regime"`
	Charts map[string]ChartState `json:"charts"`
}

func (m *Market) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{Regime: m.regime, Charts: make(map[string]ChartState, len(m.charts))}
	for id, c := range m.charts {
		out.Charts[id] = ChartState{
			Factor: c.factor,
			Anchor: c.anchor,
			Points: append([]Point(nil), c.points...),
		}
	}
	return out
}

// Restore loads saved charts. Assets missing from the snapshot keep their
// fresh chart and saved assets no longer listed are ignored. Factors are
// clamped and series trimmed to SeriesLength.
func (m *Market) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch snap.Regime {
	case RegimeBear, RegimeNeutral, RegimeBull:
		m.regime = snap.Regime
	}
	for id, c := range m.charts {
		saved, ok := snap.Charts[id]
		if !ok || len(saved.Points) == 0 {
			continue
		}
		points := saved.Points
		if len(points) > SeriesLength {
			points = points[len(points)-SeriesLength:]
		}
		c.factor = clampFactor(saved.Factor)
		c.anchor = clampFactor(saved.Anchor)
		c.points = make([]Point, len(points))
		for i, p := range points {
			c.points[i] = Point{At: p.At, Factor: clampFactor(p.Factor)}
		}
	}
}

// Factor returns the current chart factor for id, or 1 for an unknown asset.
func (m *Market) Factor(assetID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charts[assetID]
	if !ok {
		return 1
	}
	return c.factor
}

func (m *Market) Series(assetID string) ([]Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charts[assetID]
	if !ok {
		return nil, fmt.Errorf("no chart for %q", assetID)
	}
	return append([]Point(nil), c.points...), nil
}

func (m *Market) Regime() Regime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regime
}

// Walk advances every chart by one step.
func (m *Market) Walk() {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.params
	if m.rand.Float64() < p.RegimeSwitchProb {
		m.regime = randomRegime(m.rand.Float64())
	}
	now := m.nowFunc()

	ids := make([]string, 0, len(m.charts))
	for id := range m.charts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := m.charts[id]

		anchorRet := (0.30 * regimeDrift(m.regime)) + p.AnchorNoiseScale*normalish(m.rand.Float64())
		if m.rand.Float64() < p.ShockProb*0.20 {
			anchorRet += signedShock(m.rand.Float64(), m.rand.Float64(), p.ShockScale*0.40)
		}
		c.anchor = clampFactor(evolve(c.anchor, anchorRet, p.MaxDropPerTick))

		ret := regimeDrift(m.regime) + p.NoiseScale*normalish(m.rand.Float64()) + meanReversion(c.factor, c.anchor, p.MeanReversion)
		if m.rand.Float64() < p.ShockProb {
			ret += signedShock(m.rand.Float64(), m.rand.Float64(), p.ShockScale)
		}
		if m.rand.Float64() < p.ExtremeShockProb {
			ret += signedShock(m.rand.Float64(), m.rand.Float64(), p.ExtremeShockScale)
		}
		c.factor = clampFactor(evolve(c.factor, ret, p.MaxDropPerTick))

		c.points = append(c.points, Point{At: now, Factor: c.factor})
		if len(c.points) > SeriesLength {
			c.points = append(c.points[:0:0], c.points[len(c.points)-SeriesLength:]...)
		}
	}
}

// NormalizeVolatility maps unknown modes to "normal".
func NormalizeVolatility(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	for _, v := range Volatilities {
		if v == mode {
			return v
		}
	}
	return "normal"
}

func randomRegime(seed float64) Regime {
	switch {
	case seed < 0.33:
		return RegimeBear
	case seed < 0.66:
		return RegimeNeutral
	default:
		return RegimeBull
	}
}

func regimeDrift(r Regime) float64 {
	switch r {
	case RegimeBull:
		return 0.0085
	case RegimeBear:
		return -0.0085
	default:
		return 0
	}
}

func meanReversion(factor, anchor, strength float64) float64 {
	if anchor <= 0 {
		return 0
	}
	return strength * ((anchor - factor) / anchor)
}

func normalish(seed float64) float64 {
	return seed + seed - 1
}

func signedShock(magSeed, signSeed, base float64) float64 {
	mag := base * (0.35 + 2.8*magSeed*magSeed)
	if signSeed < 0.5 {
		return -mag
	}
	return mag
}

func evolve(factor, ret, maxDrop float64) float64 {
	// Bound only the downside; the clamp handles the top.
	if ret < -maxDrop {
		ret = -maxDrop
	}
	return factor * math.Exp(ret)
}

func clampFactor(f float64) float64 {
	if math.IsNaN(f) || f < MinFactor {
		return MinFactor
	}
	if f > MaxFactor {
		return MaxFactor
	}
	return f
}

type dynamics struct {
	NoiseScale        float64
	ShockProb         float64
	ShockScale        float64
	ExtremeShockProb  float64
	ExtremeShockScale float64
	MeanReversion     float64
	AnchorNoiseScale  float64
	RegimeSwitchProb  float64
	MaxDropPerTick    float64
}

func volatilityParams(mode string) dynamics {
	switch NormalizeVolatility(mode) {
	case "calm":
		return dynamics{
			NoiseScale:        0.010,
			ShockProb:         0.04,
			ShockScale:        0.05,
			ExtremeShockProb:  0.004,
			ExtremeShockScale: 0.12,
			MeanReversion:     0.05,
			AnchorNoiseScale:  0.006,
			RegimeSwitchProb:  0.04,
			MaxDropPerTick:    0.20,
		}
	case "wild":
		return dynamics{
			NoiseScale:        0.040,
			ShockProb:         0.15,
			ShockScale:        0.12,
			ExtremeShockProb:  0.030,
			ExtremeShockScale: 0.35,
			MeanReversion:     0.020,
			AnchorNoiseScale:  0.020,
			RegimeSwitchProb:  0.11,
			MaxDropPerTick:    0.50,
		}
	default:
		return dynamics{
			NoiseScale:        0.022,
			ShockProb:         0.09,
			ShockScale:        0.08,
			ExtremeShockProb:  0.012,
			ExtremeShockScale: 0.22,
			MeanReversion:     0.035,
			AnchorNoiseScale:  0.012,
			RegimeSwitchProb:  0.07,
			MaxDropPerTick:    0.35,
		}
	}
}
