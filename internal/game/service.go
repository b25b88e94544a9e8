package game

import (
	"fmt"
	"log/slog"
	"math"
	mathrand "math/rand"
	"sort"
	"sync"
	"time"

	"tycoon/internal/clock"
)

// PriceSource reports the current chart factor of an asset (1 = neutral).
type PriceSource interface {
	Factor(assetID string) float64
}

type Option func(*Service)

// WithMaxCatchUp bounds how much elapsed time a single tick may credit.
// Zero disables the bound.
func WithMaxCatchUp(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.maxCatchUp = d
		}
	}
}

func WithPriceSource(p PriceSource) Option {
	return func(s *Service) { s.prices = p }
}

func WithRandSeed(seed int64) Option {
	return func(s *Service) { s.rand = mathrand.New(mathrand.NewSource(seed)) }
}

// Service owns one player's GameState. Every read and write goes through mu,
// so timer callbacks and player actions never observe a torn state.
type Service struct {
	catalog    *Catalog
	clk        clock.Clock
	log        *slog.Logger
	prices     PriceSource
	maxCatchUp time.Duration

	mu sync.Mutex
	st GameState

	randMu sync.Mutex
	rand   *mathrand.Rand
}

func NewService(catalog *Catalog, clk clock.Clock, logger *slog.Logger, opts ...Option) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		catalog:    catalog,
		clk:        clk,
		log:        logger,
		maxCatchUp: 8 * time.Hour,
		rand:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.st = DefaultState(clk.Now())
	return s
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Snapshot returns a deep copy of the current state.
func (s *Service) Snapshot() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// Restore replaces the current state, e.g. with a loaded save.
func (s *Service) Restore(st GameState) error {
	st = st.Clone()
	st.normalize()
	if err := st.Validate(); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	return nil
}

func (s *Service) Reset() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = DefaultState(s.clk.Now())
	return s.st.Clone()
}

func (s *Service) Click(n int64) (ClickResult, error) {
	if n <= 0 {
		return ClickResult{}, ErrInvalidQuantity
	}
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	per := scaleMicros(s.st.ClickValueMicros, s.st.boosters().Magnitude(BoosterClick, now))
	earned := saturatingMul(per, n)
	s.credit(earned)
	s.st.TotalClicks += n
	return ClickResult{
		Clicks:        n,
		EarnedMicros:  earned,
		BalanceMicros: s.st.BalanceMicros,
		LevelUps:      s.addXP(XPPerClick * n),
	}, nil
}

func (s *Service) BuyAsset(id string, qty int64) (TradeResult, error) {
	if qty <= 0 {
		return TradeResult{}, ErrInvalidQuantity
	}
	def, err := s.catalog.Asset(id)
	if err != nil {
		return TradeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.st.Investments[id]
	cost := BulkPrice(def.BasePriceMicros, owned, qty, def.PriceGrowthMultiplier)
	if !affordable(cost, s.st.BalanceMicros) {
		max := maxAffordable(def.BasePriceMicros, owned, def.PriceGrowthMultiplier, s.st.BalanceMicros)
		return TradeResult{}, fmt.Errorf("%w: %s x%d costs %s, max affordable %d", ErrInsufficientFunds, id, qty, FormatCoins(cost), max)
	}
	s.st.BalanceMicros -= cost
	s.st.Investments[id] = owned + qty
	return TradeResult{
		ID:            id,
		Quantity:      qty,
		Owned:         owned + qty,
		AmountMicros:  cost,
		BalanceMicros: s.st.BalanceMicros,
		LevelUps:      s.addXP(XPPerUnit * qty),
	}, nil
}

func (s *Service) SellAsset(id string, qty int64) (TradeResult, error) {
	if qty <= 0 {
		return TradeResult{}, ErrInvalidQuantity
	}
	def, err := s.catalog.Asset(id)
	if err != nil {
		return TradeResult{}, err
	}
	factor := s.factor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.st.Investments[id]
	if owned < qty {
		return TradeResult{}, fmt.Errorf("%w: own %d %s, tried to sell %d", ErrInsufficientQuantity, owned, id, qty)
	}
	var refund int64
	for i := int64(1); i <= qty; i++ {
		refund = saturatingAdd(refund, sellValue(def, owned-i, factor))
	}
	s.credit(refund)
	next := owned - qty
	if next == 0 {
		delete(s.st.Investments, id)
	} else {
		s.st.Investments[id] = next
	}
	return TradeResult{
		ID:            id,
		Quantity:      qty,
		Owned:         next,
		AmountMicros:  refund,
		BalanceMicros: s.st.BalanceMicros,
	}, nil
}

func (s *Service) BuyBusiness(id string) (TradeResult, error) {
	def, err := s.catalog.Business(id)
	if err != nil {
		return TradeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.st.Businesses[id]
	cost := Price(def.BasePriceMicros, h.Quantity, def.PriceGrowthMultiplier)
	if !affordable(cost, s.st.BalanceMicros) {
		return TradeResult{}, fmt.Errorf("%w: %s costs %s", ErrInsufficientFunds, id, FormatCoins(cost))
	}
	s.st.BalanceMicros -= cost
	h.Quantity++
	h.Owned = true
	s.st.Businesses[id] = h
	return TradeResult{
		ID:            id,
		Quantity:      1,
		Owned:         h.Quantity,
		AmountMicros:  cost,
		BalanceMicros: s.st.BalanceMicros,
		LevelUps:      s.addXP(XPPerBusiness),
	}, nil
}

func (s *Service) UpgradeClick() (TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := Price(ClickUpgradeBaseMicros, s.st.ClickUpgrades, ClickUpgradeGrowth)
	if !affordable(cost, s.st.BalanceMicros) {
		return TradeResult{}, fmt.Errorf("%w: click upgrade costs %s", ErrInsufficientFunds, FormatCoins(cost))
	}
	s.st.BalanceMicros -= cost
	s.st.ClickUpgrades++
	s.st.ClickValueMicros += ClickUpgradeStepMicros
	return TradeResult{
		ID:            "click",
		Quantity:      1,
		Owned:         s.st.ClickUpgrades,
		AmountMicros:  cost,
		BalanceMicros: s.st.BalanceMicros,
	}, nil
}

// AddFunds credits a reward (premium pack, promo) to the balance.
func (s *Service) AddFunds(amountMicros int64, reason string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amountMicros > 0 {
		s.credit(amountMicros)
		s.log.Info("funds granted", "reason", reason, "amount", FormatCoins(amountMicros))
	}
	return s.st.BalanceMicros
}

func (s *Service) GrantBooster(kind BoosterKind, magnitude float64, d time.Duration) (ActiveMultiplier, error) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.boosters().Grant(kind, magnitude, d, now)
}

func (s *Service) IsBoosterActive(kind BoosterKind) bool {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.boosters().IsActive(kind, now)
}

// SweepBoosters drops expired multipliers.
func (s *Service) SweepBoosters() []BoosterKind {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.st.boosters().Sweep(now)
	for _, k := range dropped {
		s.log.Debug("booster expired", "kind", k)
	}
	return dropped
}

func (s *Service) Gamble(stakeMicros int64) (GambleResult, error) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if stakeMicros <= 0 || stakeMicros > s.st.BalanceMicros {
		return GambleResult{}, ErrInvalidStake
	}
	mult := s.st.boosters().Magnitude(BoosterCasino, now)
	out := GambleResult{StakeMicros: stakeMicros, Multiplier: mult}
	s.st.BalanceMicros -= stakeMicros
	if s.nextFloat() < CasinoWinProbability {
		out.Won = true
		out.PayoutMicros = scaleMicros(saturatingMul(stakeMicros, 2), mult)
		s.credit(out.PayoutMicros)
	}
	out.BalanceMicros = s.st.BalanceMicros
	return out, nil
}

// Tick accrues idle income up to the clock's current time.
func (s *Service) Tick() TickResult {
	return s.TickAt(s.clk.Now())
}

// TickAt accrues income for the time between the last tick and now. A now at
// or before the last tick credits nothing and leaves the tick mark in place.
func (s *Service) TickAt(now time.Time) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	elapsed := nowMs - s.st.LastTickMs
	if elapsed <= 0 {
		return TickResult{}
	}
	var out TickResult
	if s.maxCatchUp > 0 && elapsed > s.maxCatchUp.Milliseconds() {
		elapsed = s.maxCatchUp.Milliseconds()
		out.Capped = true
	}
	assetRate, bizRate := s.baseRates()
	b := s.st.boosters()
	incomeMult := b.Magnitude(BoosterIncome, now)
	bizMult := incomeMult * b.Magnitude(BoosterBusiness, now)

	earned := accrue(assetRate, incomeMult, elapsed) + accrue(bizRate, bizMult, elapsed)
	s.credit(earned)
	s.st.LastTickMs = nowMs

	out.ElapsedMs = elapsed
	out.EarnedMicros = earned
	out.RatePerSecondMicros = scaleMicros(assetRate, incomeMult) + scaleMicros(bizRate, bizMult)
	if out.Capped {
		s.log.Info("idle catch-up capped", "max", s.maxCatchUp.String(), "earned", FormatCoins(earned))
	}
	return out
}

func (s *Service) Dashboard() Dashboard {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.st.boosters()
	incomeMult := b.Magnitude(BoosterIncome, now)
	bizMult := incomeMult * b.Magnitude(BoosterBusiness, now)
	assetRate, bizRate := s.baseRates()

	out := Dashboard{
		BalanceMicros:      s.st.BalanceMicros,
		Level:              s.st.Level,
		Experience:         s.st.Experience,
		NextLevelXP:        XPForLevel(s.st.Level),
		ClickValueMicros:   scaleMicros(s.st.ClickValueMicros, b.Magnitude(BoosterClick, now)),
		ClickUpgradeMicros: Price(ClickUpgradeBaseMicros, s.st.ClickUpgrades, ClickUpgradeGrowth),
		IncomePerSecMicros: scaleMicros(assetRate, incomeMult) + scaleMicros(bizRate, bizMult),
		TotalEarnedMicros:  s.st.TotalEarnedMicros,
		TotalClicks:        s.st.TotalClicks,
		LastTickAt:         time.UnixMilli(s.st.LastTickMs).UTC(),
	}
	active := b.Active(now)
	out.Boosters = make([]BoosterView, 0, len(active))
	for _, m := range active {
		out.Boosters = append(out.Boosters, BoosterView{ActiveMultiplier: m, RemainingMs: b.Remaining(m.Kind, now).Milliseconds()})
	}
	for _, def := range s.catalog.Assets() {
		owned := s.st.Investments[def.ID]
		v := AssetView{
			ID:                 def.ID,
			Name:               def.Name,
			Owned:              owned,
			NextPriceMicros:    Price(def.BasePriceMicros, owned, def.PriceGrowthMultiplier),
			IncomePerSecMicros: Income(def.BaseIncomeMicros, owned),
		}
		if owned > 0 {
			v.SellValueMicros = sellValue(def, owned-1, s.factor(def.ID))
		}
		out.Assets = append(out.Assets, v)
	}
	for _, def := range s.catalog.Businesses() {
		h := s.st.Businesses[def.ID]
		out.Businesses = append(out.Businesses, BusinessView{
			ID:                 def.ID,
			Name:               def.Name,
			Owned:              h.Owned,
			Quantity:           h.Quantity,
			NextPriceMicros:    Price(def.BasePriceMicros, h.Quantity, def.PriceGrowthMultiplier),
			IncomePerSecMicros: Income(def.BaseIncomeMicros, h.Quantity),
		})
	}
	return out
}

// baseRates sums unmultiplied per-second income. Caller holds mu.
func (s *Service) baseRates() (assets, businesses int64) {
	ids := make([]string, 0, len(s.st.Investments))
	for id := range s.st.Investments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		def, err := s.catalog.Asset(id)
		if err != nil {
			continue
		}
		assets += Income(def.BaseIncomeMicros, s.st.Investments[id])
	}
	for id, h := range s.st.Businesses {
		def, err := s.catalog.Business(id)
		if err != nil {
			continue
		}
		businesses += Income(def.BaseIncomeMicros, h.Quantity)
	}
	return assets, businesses
}

// credit adds v to the balance and lifetime earnings. Caller holds mu.
func (s *Service) credit(v int64) {
	if v <= 0 {
		return
	}
	s.st.BalanceMicros = saturatingAdd(s.st.BalanceMicros, v)
	s.st.TotalEarnedMicros = saturatingAdd(s.st.TotalEarnedMicros, v)
}

// addXP applies experience and returns the number of level-ups. Caller holds mu.
func (s *Service) addXP(xp int64) int64 {
	if xp <= 0 {
		return 0
	}
	s.st.Experience += xp
	var ups int64
	for s.st.Experience >= XPForLevel(s.st.Level) {
		s.st.Experience -= XPForLevel(s.st.Level)
		s.st.Level++
		ups++
	}
	if ups > 0 {
		s.log.Info("level up", "level", s.st.Level)
	}
	return ups
}

func (s *Service) factor(assetID string) float64 {
	if s.prices == nil {
		return 1
	}
	f := s.prices.Factor(assetID)
	if f <= 0 {
		return 1
	}
	return f
}

func (s *Service) nextFloat() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64()
}

func sellValue(def AssetDefinition, ownedAfter int64, factor float64) int64 {
	unit := Price(def.BasePriceMicros, ownedAfter, def.PriceGrowthMultiplier)
	return scaleMicros(applyBps(unit, SellRatioBps), factor)
}

// affordable reports whether cost fits the balance. A saturated cost stands
// for a price past the int64 range and is never affordable.
func affordable(cost, balance int64) bool {
	return cost < math.MaxInt64 && cost <= balance
}

func maxAffordable(baseMicros, owned int64, growth float64, budget int64) int64 {
	if growth == 1 {
		if p := Price(baseMicros, 0, 1); p > 0 && budget > 0 {
			return budget / p
		}
		return 0
	}
	var n, spent int64
	for {
		p := Price(baseMicros, owned+n, growth)
		if p <= 0 || p == math.MaxInt64 || p > budget-spent {
			return n
		}
		spent += p
		n++
	}
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > (1<<63-1)-b {
		return 1<<63 - 1
	}
	return a + b
}

func saturatingMul(a, n int64) int64 {
	if a == 0 || n == 0 {
		return 0
	}
	if a > (1<<63-1)/n {
		return 1<<63 - 1
	}
	return a * n
}
