package game

import (
	"math"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPriceMatchesCurveAndIncreases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Int64Range(MicrosPerCoin, 1_000*MicrosPerCoin).Draw(t, "base")
		growth := rapid.Float64Range(1.01, 1.3).Draw(t, "growth")
		n := rapid.Int64Range(0, 80).Draw(t, "owned")

		got := Price(base, n, growth)
		want := float64(base) * math.Pow(growth, float64(n))
		if math.Abs(float64(got)-want) > want*1e-9+1 {
			t.Fatalf("price(%d, %d, %v) = %d, want ~%.0f", base, n, growth, got, want)
		}
		if next := Price(base, n+1, growth); next <= got {
			t.Fatalf("price not increasing: owned=%d %d -> %d", n, got, next)
		}
	})
}

func TestRepeatedTickTimestampEarnsNothing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := NewService(DefaultCatalog(), nil, nil)
		st := svc.Snapshot()
		for _, id := range DefaultCatalog().AssetIDs() {
			st.Investments[id] = rapid.Int64Range(0, 50).Draw(t, id)
		}
		if err := svc.Restore(st); err != nil {
			t.Fatalf("restore: %v", err)
		}
		at := time.UnixMilli(st.LastTickMs + rapid.Int64Range(0, 86_400_000).Draw(t, "elapsed"))
		svc.TickAt(at)
		before := svc.Snapshot().BalanceMicros
		if res := svc.TickAt(at); res.EarnedMicros != 0 {
			t.Fatalf("second tick earned %d", res.EarnedMicros)
		}
		if after := svc.Snapshot().BalanceMicros; after != before {
			t.Fatalf("balance moved %d -> %d", before, after)
		}
	})
}

func TestBoosterExpiryIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBoosters()
		start := time.UnixMilli(rapid.Int64Range(0, 1<<40).Draw(t, "start"))
		d := time.Duration(rapid.Int64Range(1, 60_000).Draw(t, "duration_ms")) * time.Millisecond
		m, err := b.Grant(BoosterIncome, rapid.Float64Range(1.1, 10).Draw(t, "magnitude"), d, start)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}

		steps := rapid.SliceOfN(rapid.Int64Range(0, 5_000), 1, 40).Draw(t, "steps")
		now := start
		expired := false
		for _, step := range steps {
			now = now.Add(time.Duration(step) * time.Millisecond)
			active := b.IsActive(BoosterIncome, now)
			if expired && active {
				t.Fatalf("booster reactivated at %d after expiry %d", now.UnixMilli(), m.ExpiresAtMs)
			}
			if now.UnixMilli() >= m.ExpiresAtMs && active {
				t.Fatalf("booster active at %d, expiry %d", now.UnixMilli(), m.ExpiresAtMs)
			}
			if !active {
				expired = true
			}
		}
	})
}

func TestStateRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := DefaultState(time.UnixMilli(rapid.Int64Range(0, 1<<42).Draw(t, "created")))
		st.BalanceMicros = rapid.Int64Range(0, math.MaxInt64).Draw(t, "balance")
		st.Level = rapid.Int64Range(1, 500).Draw(t, "level")
		st.Experience = rapid.Int64Range(0, 1_000_000).Draw(t, "xp")
		st.ClickValueMicros = rapid.Int64Range(0, 1<<50).Draw(t, "click")
		st.ClickUpgrades = rapid.Int64Range(0, 100).Draw(t, "upgrades")
		st.LastTickMs = st.CreatedAtMs + rapid.Int64Range(0, 1<<30).Draw(t, "since")
		st.TotalClicks = rapid.Int64Range(0, 1<<40).Draw(t, "clicks")
		st.TotalEarnedMicros = rapid.Int64Range(0, math.MaxInt64).Draw(t, "earned")
		for _, id := range DefaultCatalog().AssetIDs() {
			if q := rapid.Int64Range(0, 1_000).Draw(t, "asset_"+id); q > 0 {
				st.Investments[id] = q
			}
		}
		for _, def := range DefaultCatalog().Businesses() {
			q := rapid.Int64Range(0, 50).Draw(t, "biz_"+def.ID)
			if q > 0 {
				st.Businesses[def.ID] = BusinessHolding{Quantity: q, Owned: true}
			}
		}
		for _, k := range []BoosterKind{BoosterClick, BoosterIncome, BoosterBusiness, BoosterCasino} {
			if rapid.Bool().Draw(t, "has_"+string(k)) {
				st.ActiveMultipliers[k] = ActiveMultiplier{
					Kind:        k,
					Magnitude:   rapid.Float64Range(0.5, 100).Draw(t, "mag_"+string(k)),
					ExpiresAtMs: rapid.Int64Range(0, 1<<42).Draw(t, "exp_"+string(k)),
				}
			}
		}

		raw, err := EncodeState(st)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeState(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, st) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, st)
		}
	})
}
