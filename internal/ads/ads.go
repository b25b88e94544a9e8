// Package ads grants boosters and currency from rewarded ads and premium
// purchases. The SDKs themselves are simulated.
package ads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"tycoon/internal/game"
)

var (
	ErrAdUnavailable    = errors.New("no ad available right now")
	ErrUnknownPlacement = errors.New("unknown ad placement")
	ErrUnknownSKU       = errors.New("unknown premium item")
)

// Placement is a rewarded-ad slot and the booster it grants.
type Placement struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Kind      game.BoosterKind `json:"kind"`
	Magnitude float64          `json:"magnitude"`
	Duration  time.Duration    `json:"duration"`
}

var placements = map[string]Placement{
	"double_click":  {ID: "double_click", Title: "Double click value", Kind: game.BoosterClick, Magnitude: 2, Duration: 60 * time.Second},
	"income_rush":   {ID: "income_rush", Title: "Income rush", Kind: game.BoosterIncome, Magnitude: 2, Duration: 5 * time.Minute},
	"business_boom": {ID: "business_boom", Title: "Business boom", Kind: game.BoosterBusiness, Magnitude: 3, Duration: 2 * time.Minute},
	"lucky_casino":  {ID: "lucky_casino", Title: "Lucky casino", Kind: game.BoosterCasino, Magnitude: 1.5, Duration: 3 * time.Minute},
}

func LookupPlacement(id string) (Placement, error) {
	p, ok := placements[id]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrUnknownPlacement, id)
	}
	return p, nil
}

// Placements lists every placement ordered by id.
func Placements() []Placement {
	out := make([]Placement, 0, len(placements))
	for _, p := range placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SKU is a premium item. Booster is optional.
type SKU struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	PriceCents  int64      `json:"price_cents"`
	CoinsMicros int64      `json:"coins_micros"`
	Booster     *Placement `json:"booster,omitempty"`
}

var skus = map[string]SKU{
	"starter_pack": {
		ID:          "starter_pack",
		Title:       "Starter pack",
		PriceCents:  199,
		CoinsMicros: 5_000 * game.MicrosPerCoin,
	},
	"income_pass": {
		ID:         "income_pass",
		Title:      "Income pass",
		PriceCents: 499,
		Booster: &Placement{
			ID:        "income_pass",
			Title:     "Income pass",
			Kind:      game.BoosterIncome,
			Magnitude: 2,
			Duration:  24 * time.Hour,
		},
	},
}

func LookupSKU(id string) (SKU, error) {
	s, ok := skus[id]
	if !ok {
		return SKU{}, fmt.Errorf("%w: %s", ErrUnknownSKU, id)
	}
	return s, nil
}

func SKUs() []SKU {
	out := make([]SKU, 0, len(skus))
	for _, s := range skus {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reward is a completed rewarded-ad view.
type Reward struct {
	AdID      string  `json:"ad_id"`
	Placement string  `json:"placement"`
	SDK       string  `json:"sdk"`
	ECPM      float64 `json:"ecpm"`
}

type Provider interface {
	ShowRewarded(ctx context.Context, p Placement) (Reward, error)
}

type Receipt struct {
	OrderID    string `json:"order_id"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
}

type Store interface {
	Purchase(ctx context.Context, sku SKU) (Receipt, error)
}

// Granter is the part of the game service rewards are paid into.
type Granter interface {
	GrantBooster(kind game.BoosterKind, magnitude float64, d time.Duration) (game.ActiveMultiplier, error)
	AddFunds(amountMicros int64, reason string) int64
}

type AdEvent struct {
	ID        string  `json:"id"`
	Placement string  `json:"placement"`
	SDK       string  `json:"sdk,omitempty"`
	AppID     string  `json:"app_id,omitempty"`
	Filled    bool    `json:"filled"`
	ECPM      float64 `json:"ecpm,omitempty"`
	Error     string  `json:"error,omitempty"`
	PlayerID  string  `json:"player_id,omitempty"`
	AtMs      int64   `json:"at_ms"`
}

type PaymentEvent struct {
	OrderID    string `json:"order_id"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
	PlayerID   string `json:"player_id,omitempty"`
	AtMs       int64  `json:"at_ms"`
}

type ECPMEntry struct {
	SDK    string  `json:"sdk"`
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// Reporter forwards outcomes to the backend. Calls are best-effort.
type Reporter interface {
	ReportAd(ctx context.Context, ev AdEvent) error
	ReportPayment(ctx context.Context, ev PaymentEvent) error
	ReportECPM(ctx context.Context, e ECPMEntry) error
}

type Outcome struct {
	Reward  Reward                `json:"reward"`
	Booster game.ActiveMultiplier `json:"booster"`
}

type PurchaseOutcome struct {
	Receipt       Receipt                `json:"receipt"`
	BalanceMicros int64                  `json:"balance_micros"`
	Booster       *game.ActiveMultiplier `json:"booster,omitempty"`
}

// Manager runs a rewarded flow end to end: show, grant, report.
type Manager struct {
	provider Provider
	store    Store
	granter  Granter
	reporter Reporter
	playerID string
	appIDs   map[string]string
	log      *slog.Logger
	now      func() time.Time
}

func NewManager(provider Provider, store Store, granter Granter, reporter Reporter, playerID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		store:    store,
		granter:  granter,
		reporter: reporter,
		playerID: playerID,
		log:      logger,
		now:      time.Now,
	}
}

// SetAppIDs maps SDK names to the app ids carried in ad reports.
func (m *Manager) SetAppIDs(ids map[string]string) {
	m.appIDs = make(map[string]string, len(ids))
	for sdk, id := range ids {
		if id != "" {
			m.appIDs[sdk] = id
		}
	}
}

// WatchAd shows one rewarded ad. A failed show grants nothing and the error is
// returned to the caller without retry.
func (m *Manager) WatchAd(ctx context.Context, placementID string) (Outcome, error) {
	p, err := LookupPlacement(placementID)
	if err != nil {
		return Outcome{}, err
	}
	reward, err := m.provider.ShowRewarded(ctx, p)
	if err != nil {
		m.reportAd(ctx, AdEvent{ID: uuid.NewString(), Placement: p.ID, Error: err.Error()})
		return Outcome{}, err
	}
	booster, err := m.granter.GrantBooster(p.Kind, p.Magnitude, p.Duration)
	if err != nil {
		return Outcome{}, fmt.Errorf("grant %s: %w", p.ID, err)
	}
	m.reportAd(ctx, AdEvent{ID: reward.AdID, Placement: p.ID, SDK: reward.SDK, AppID: m.appIDs[reward.SDK], Filled: true, ECPM: reward.ECPM})
	if m.reporter != nil {
		if err := m.reporter.ReportECPM(ctx, ECPMEntry{SDK: reward.SDK, Value: reward.ECPM, Source: p.ID}); err != nil {
			m.log.Warn("ecpm report failed", "err", err)
		}
	}
	return Outcome{Reward: reward, Booster: booster}, nil
}

func (m *Manager) BuyPremium(ctx context.Context, skuID string) (PurchaseOutcome, error) {
	sku, err := LookupSKU(skuID)
	if err != nil {
		return PurchaseOutcome{}, err
	}
	receipt, err := m.store.Purchase(ctx, sku)
	if err != nil {
		return PurchaseOutcome{}, fmt.Errorf("purchase %s: %w", sku.ID, err)
	}
	out := PurchaseOutcome{Receipt: receipt, BalanceMicros: m.granter.AddFunds(sku.CoinsMicros, "premium:"+sku.ID)}
	if sku.Booster != nil {
		b, err := m.granter.GrantBooster(sku.Booster.Kind, sku.Booster.Magnitude, sku.Booster.Duration)
		if err != nil {
			return out, fmt.Errorf("grant %s: %w", sku.ID, err)
		}
		out.Booster = &b
	}
	if m.reporter != nil {
		ev := PaymentEvent{
			OrderID:    receipt.OrderID,
			SKU:        sku.ID,
			PriceCents: receipt.PriceCents,
			PlayerID:   m.playerID,
			AtMs:       m.now().UnixMilli(),
		}
		if err := m.reporter.ReportPayment(ctx, ev); err != nil {
			m.log.Warn("payment report failed", "err", err)
		}
	}
	return out, nil
}

func (m *Manager) reportAd(ctx context.Context, ev AdEvent) {
	if m.reporter == nil {
		return
	}
	ev.PlayerID = m.playerID
	ev.AtMs = m.now().UnixMilli()
	if err := m.reporter.ReportAd(ctx, ev); err != nil {
		m.log.Warn("ad report failed", "placement", ev.Placement, "err", err)
	}
}
