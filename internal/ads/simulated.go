package ads

import (
	"context"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

var sdks = []string{"admob", "ironsource"}

// SimulatedProvider fills a request with probability fillRate after latency.
type SimulatedProvider struct {
	fillRate float64
	latency  time.Duration

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewSimulatedProvider(fillRate float64, latency time.Duration, seed int64) *SimulatedProvider {
	if fillRate < 0 {
		fillRate = 0
	}
	if fillRate > 1 {
		fillRate = 1
	}
	return &SimulatedProvider{
		fillRate: fillRate,
		latency:  latency,
		rand:     mathrand.New(mathrand.NewSource(seed)),
	}
}

func (p *SimulatedProvider) ShowRewarded(ctx context.Context, pl Placement) (Reward, error) {
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Reward{}, ctx.Err()
		case <-t.C:
		}
	}
	p.mu.Lock()
	filled := p.rand.Float64() < p.fillRate
	sdk := sdks[p.rand.Intn(len(sdks))]
	ecpm := 4 + 14*p.rand.Float64()
	p.mu.Unlock()

	if !filled {
		return Reward{}, ErrAdUnavailable
	}
	return Reward{
		AdID:      uuid.NewString(),
		Placement: pl.ID,
		SDK:       sdk,
		ECPM:      float64(int64(ecpm*100)) / 100,
	}, nil
}

// SimulatedStore approves every purchase.
type SimulatedStore struct{}

func (SimulatedStore) Purchase(ctx context.Context, sku SKU) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	return Receipt{OrderID: uuid.NewString(), SKU: sku.ID, PriceCents: sku.PriceCents}, nil
}
