package ads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tycoon/internal/clock"
	"tycoon/internal/game"
)

type recordingReporter struct {
	mu       sync.Mutex
	ads      []AdEvent
	payments []PaymentEvent
	ecpm     []ECPMEntry
	fail     error
}

func (r *recordingReporter) ReportAd(_ context.Context, ev AdEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads = append(r.ads, ev)
	return r.fail
}

func (r *recordingReporter) ReportPayment(_ context.Context, ev PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, ev)
	return r.fail
}

func (r *recordingReporter) ReportECPM(_ context.Context, e ECPMEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ecpm = append(r.ecpm, e)
	return r.fail
}

func newManager(t *testing.T, fillRate float64, rep Reporter) (*Manager, *game.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(game.DefaultCatalog(), clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), logger)
	return NewManager(NewSimulatedProvider(fillRate, 0, 1), SimulatedStore{}, svc, rep, "player-1", logger), svc
}

func TestWatchAdGrantsBooster(t *testing.T) {
	rep := &recordingReporter{}
	m, svc := newManager(t, 1, rep)
	out, err := m.WatchAd(context.Background(), "double_click")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if out.Booster.Kind != game.BoosterClick || out.Booster.Magnitude != 2 {
		t.Fatalf("unexpected booster %+v", out.Booster)
	}
	if !svc.IsBoosterActive(game.BoosterClick) {
		t.Fatalf("booster not granted")
	}
	if len(rep.ads) != 1 || !rep.ads[0].Filled || rep.ads[0].PlayerID != "player-1" {
		t.Fatalf("ad events %+v", rep.ads)
	}
	if len(rep.ecpm) != 1 || rep.ecpm[0].Source != "double_click" || rep.ecpm[0].Value < 0 {
		t.Fatalf("ecpm entries %+v", rep.ecpm)
	}
}

func TestWatchAdCarriesAppID(t *testing.T) {
	rep := &recordingReporter{}
	m, _ := newManager(t, 1, rep)
	m.SetAppIDs(map[string]string{"admob": "ca-app-pub-1", "ironsource": "is-key-1"})
	for i := 0; i < 4; i++ {
		if _, err := m.WatchAd(context.Background(), "double_click"); err != nil {
			t.Fatalf("watch: %v", err)
		}
	}
	want := map[string]string{"admob": "ca-app-pub-1", "ironsource": "is-key-1"}
	for _, ev := range rep.ads {
		if ev.AppID != want[ev.SDK] {
			t.Fatalf("%s event carried app id %q", ev.SDK, ev.AppID)
		}
	}
}

func TestWatchAdUnavailableGrantsNothing(t *testing.T) {
	rep := &recordingReporter{}
	m, svc := newManager(t, 0, rep)
	if _, err := m.WatchAd(context.Background(), "income_rush"); !errors.Is(err, ErrAdUnavailable) {
		t.Fatalf("expected ErrAdUnavailable, got %v", err)
	}
	if svc.IsBoosterActive(game.BoosterIncome) {
		t.Fatalf("booster granted on failed ad")
	}
	if len(rep.ads) != 1 || rep.ads[0].Filled || rep.ads[0].Error == "" {
		t.Fatalf("failure not reported: %+v", rep.ads)
	}
	if len(rep.ecpm) != 0 {
		t.Fatalf("ecpm reported for unfilled ad")
	}
}

func TestWatchAdUnknownPlacement(t *testing.T) {
	m, _ := newManager(t, 1, nil)
	if _, err := m.WatchAd(context.Background(), "free_money"); !errors.Is(err, ErrUnknownPlacement) {
		t.Fatalf("expected ErrUnknownPlacement, got %v", err)
	}
}

func TestReporterFailureDoesNotBlockReward(t *testing.T) {
	rep := &recordingReporter{fail: errors.New("backend down")}
	m, svc := newManager(t, 1, rep)
	if _, err := m.WatchAd(context.Background(), "lucky_casino"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !svc.IsBoosterActive(game.BoosterCasino) {
		t.Fatalf("booster not granted")
	}
}

func TestBuyPremium(t *testing.T) {
	rep := &recordingReporter{}
	m, svc := newManager(t, 1, rep)

	out, err := m.BuyPremium(context.Background(), "starter_pack")
	if err != nil {
		t.Fatalf("starter pack: %v", err)
	}
	if out.BalanceMicros != 5_000*game.MicrosPerCoin || out.Booster != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}

	out, err = m.BuyPremium(context.Background(), "income_pass")
	if err != nil {
		t.Fatalf("income pass: %v", err)
	}
	if out.Booster == nil || out.Booster.Kind != game.BoosterIncome {
		t.Fatalf("income pass booster %+v", out.Booster)
	}
	if !svc.IsBoosterActive(game.BoosterIncome) {
		t.Fatalf("income pass not active")
	}
	if len(rep.payments) != 2 || rep.payments[1].SKU != "income_pass" || rep.payments[1].OrderID == "" {
		t.Fatalf("payments %+v", rep.payments)
	}
	if _, err := m.BuyPremium(context.Background(), "gold_bar"); !errors.Is(err, ErrUnknownSKU) {
		t.Fatalf("expected ErrUnknownSKU, got %v", err)
	}
}

func TestSimulatedProviderHonoursContext(t *testing.T) {
	p := NewSimulatedProvider(1, time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ShowRewarded(ctx, Placement{ID: "double_click"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCatalogsAreSorted(t *testing.T) {
	ps := Placements()
	if len(ps) != 4 || ps[0].ID != "business_boom" {
		t.Fatalf("placements %+v", ps)
	}
	for _, p := range ps {
		if _, err := game.ParseBoosterKind(string(p.Kind)); err != nil {
			t.Fatalf("placement %s has bad kind: %v", p.ID, err)
		}
	}
	if s := SKUs(); len(s) != 2 || s[0].ID != "income_pass" {
		t.Fatalf("skus %+v", s)
	}
}
