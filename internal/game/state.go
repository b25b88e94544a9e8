package game

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// BusinessHolding tracks one business line owned by the player.
type BusinessHolding struct {
	Quantity int64 `json:"quantity"`
	Owned    bool  `json:"owned"`
}

// GameState is the whole save file. It is created at session start, mutated by
// player actions and the idle tick, and never destroyed.
type GameState struct {
	Version           int                              `json:"version"`
	BalanceMicros     int64                            `json:"balance_micros"`
	Level             int64                            `json:"level"`
	Experience        int64                            `json:"experience"`
	ClickValueMicros  int64                            `json:"click_value_micros"`
	ClickUpgrades     int64                            `json:"click_upgrades"`
	Investments       map[string]int64                 `json:"investments"`
	Businesses        map[string]BusinessHolding       `json:"businesses"`
	ActiveMultipliers map[BoosterKind]ActiveMultiplier `json:"active_multipliers"`
	LastTickMs        int64                            `json:"last_tick_ms"`
	TotalEarnedMicros int64                            `json:"total_earned_micros"`
	TotalClicks       int64                            `json:"total_clicks"`
	CreatedAtMs       int64                            `json:"created_at_ms"`
}

func DefaultState(now time.Time) GameState {
	ms := now.UnixMilli()
	return GameState{
		Version:           StateVersion,
		BalanceMicros:     StarterBalanceMicros,
		Level:             1,
		ClickValueMicros:  StarterClickValueMicros,
		Investments:       map[string]int64{},
		Businesses:        map[string]BusinessHolding{},
		ActiveMultipliers: map[BoosterKind]ActiveMultiplier{},
		LastTickMs:        ms,
		CreatedAtMs:       ms,
	}
}

// Clone returns a deep copy.
func (s GameState) Clone() GameState {
	out := s
	out.Investments = make(map[string]int64, len(s.Investments))
	for k, v := range s.Investments {
		out.Investments[k] = v
	}
	out.Businesses = make(map[string]BusinessHolding, len(s.Businesses))
	for k, v := range s.Businesses {
		out.Businesses[k] = v
	}
	out.ActiveMultipliers = make(map[BoosterKind]ActiveMultiplier, len(s.ActiveMultipliers))
	for k, v := range s.ActiveMultipliers {
		out.ActiveMultipliers[k] = v
	}
	return out
}

// Validate checks the invariants every transition must preserve.
func (s GameState) Validate() error {
	if s.BalanceMicros < 0 {
		return fmt.Errorf("balance must be >= 0, got %d", s.BalanceMicros)
	}
	if s.Level < 1 {
		return fmt.Errorf("level must be >= 1, got %d", s.Level)
	}
	if s.Experience < 0 || s.ClickValueMicros < 0 || s.ClickUpgrades < 0 {
		return fmt.Errorf("counters must be >= 0")
	}
	for id, q := range s.Investments {
		if q < 0 {
			return fmt.Errorf("investment %s quantity must be >= 0", id)
		}
	}
	for id, b := range s.Businesses {
		if b.Quantity < 0 {
			return fmt.Errorf("business %s quantity must be >= 0", id)
		}
	}
	for k, m := range s.ActiveMultipliers {
		if _, err := ParseBoosterKind(string(k)); err != nil {
			return err
		}
		if m.Magnitude <= 0 || math.IsNaN(m.Magnitude) || math.IsInf(m.Magnitude, 0) {
			return fmt.Errorf("booster %s magnitude must be finite and > 0", k)
		}
	}
	return nil
}

func (s *GameState) normalize() {
	if s.Version == 0 {
		s.Version = StateVersion
	}
	if s.Level < 1 {
		s.Level = 1
	}
	if s.Investments == nil {
		s.Investments = map[string]int64{}
	}
	if s.Businesses == nil {
		s.Businesses = map[string]BusinessHolding{}
	}
	if s.ActiveMultipliers == nil {
		s.ActiveMultipliers = map[BoosterKind]ActiveMultiplier{}
	}
}

// boosters returns a registry view backed by the state's multiplier map.
func (s *GameState) boosters() *Boosters {
	if s.ActiveMultipliers == nil {
		s.ActiveMultipliers = map[BoosterKind]ActiveMultiplier{}
	}
	return &Boosters{entries: s.ActiveMultipliers}
}

func EncodeState(s GameState) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeState(raw []byte) (GameState, error) {
	var s GameState
	if err := json.Unmarshal(raw, &s); err != nil {
		return GameState{}, fmt.Errorf("decode state: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return GameState{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}
