package game

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type BoosterKind string

const (
	BoosterClick    BoosterKind = "click"
	BoosterIncome   BoosterKind = "income"
	BoosterBusiness BoosterKind = "business"
	BoosterCasino   BoosterKind = "casino"
)

func ParseBoosterKind(s string) (BoosterKind, error) {
	k := BoosterKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case BoosterClick, BoosterIncome, BoosterBusiness, BoosterCasino:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBoosterKind, s)
}

// ActiveMultiplier is a temporary bonus that applies while now < ExpiresAtMs.
type ActiveMultiplier struct {
	Kind        BoosterKind `json:"kind"`
	Magnitude   float64     `json:"magnitude"`
	ExpiresAtMs int64       `json:"expires_at_ms"`
}

func (m ActiveMultiplier) activeAt(nowMs int64) bool {
	return nowMs < m.ExpiresAtMs
}

// Boosters is the multiplier registry. It holds at most one entry per kind;
// the zero value is not usable, build one with NewBoosters.
type Boosters struct {
	entries map[BoosterKind]ActiveMultiplier
}

func NewBoosters() *Boosters {
	return &Boosters{entries: make(map[BoosterKind]ActiveMultiplier)}
}

// Grant activates kind for d, replacing any current entry of the same kind.
func (b *Boosters) Grant(kind BoosterKind, magnitude float64, d time.Duration, now time.Time) (ActiveMultiplier, error) {
	if _, err := ParseBoosterKind(string(kind)); err != nil {
		return ActiveMultiplier{}, err
	}
	if magnitude <= 0 {
		return ActiveMultiplier{}, fmt.Errorf("booster magnitude must be > 0")
	}
	if d <= 0 {
		return ActiveMultiplier{}, fmt.Errorf("booster duration must be > 0")
	}
	m := ActiveMultiplier{
		Kind:        kind,
		Magnitude:   magnitude,
		ExpiresAtMs: now.UnixMilli() + d.Milliseconds(),
	}
	b.entries[kind] = m
	return m, nil
}

func (b *Boosters) IsActive(kind BoosterKind, now time.Time) bool {
	m, ok := b.entries[kind]
	return ok && m.activeAt(now.UnixMilli())
}

// Magnitude returns the active multiplier for kind, or 1.
func (b *Boosters) Magnitude(kind BoosterKind, now time.Time) float64 {
	m, ok := b.entries[kind]
	if !ok || !m.activeAt(now.UnixMilli()) {
		return 1
	}
	return m.Magnitude
}

func (b *Boosters) Remaining(kind BoosterKind, now time.Time) time.Duration {
	m, ok := b.entries[kind]
	if !ok || !m.activeAt(now.UnixMilli()) {
		return 0
	}
	return time.Duration(m.ExpiresAtMs-now.UnixMilli()) * time.Millisecond
}

// Sweep drops expired entries and returns their kinds in sorted order.
func (b *Boosters) Sweep(now time.Time) []BoosterKind {
	nowMs := now.UnixMilli()
	var dropped []BoosterKind
	for k, m := range b.entries {
		if !m.activeAt(nowMs) {
			delete(b.entries, k)
			dropped = append(dropped, k)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}

// Active lists the entries still active at now, ordered by kind.
func (b *Boosters) Active(now time.Time) []ActiveMultiplier {
	nowMs := now.UnixMilli()
	out := make([]ActiveMultiplier, 0, len(b.entries))
	for _, m := range b.entries {
		if m.activeAt(nowMs) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
