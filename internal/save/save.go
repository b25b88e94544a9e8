// Package save persists the game state blob to a local store and an optional
// remote document store.
package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tycoon/internal/game"
	"tycoon/internal/market"
)

//go:generate go tool mockgen -destination mocks/backend_mock.go -package mocks tycoon/internal/save Backend

var (
	ErrNotFound   = errors.New("save not found")
	ErrInvalidKey = errors.New("save key must be 1-64 characters of letters, digits, '-' or '_'")
)

// Backend stores opaque blobs by key. Writes are last-write-wins.
type Backend interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Name() string
}

// Envelope wraps a state with write metadata. SaveID and SavedAtMs are
// diagnostics only; they are not used to resolve conflicting writers.
// Charts is absent in saves written without a market.
type Envelope struct {
	SaveID    string           `json:"save_id"`
	SavedAtMs int64            `json:"saved_at_ms"`
	State     game.GameState   `json:"state"`
	Charts    *market.Snapshot `json:"charts,omitempty"`
}

func NewEnvelope(st game.GameState, now time.Time) Envelope {
	return Envelope{SaveID: uuid.NewString(), SavedAtMs: now.UnixMilli(), State: st}
}

func (e Envelope) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode save: %w", err)
	}
	return raw, nil
}

func Encode(st game.GameState, now time.Time) ([]byte, error) {
	return NewEnvelope(st, now).Marshal()
}

func Decode(raw []byte) (Envelope, error) {
	var head struct {
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Envelope{}, fmt.Errorf("decode save: %w", err)
	}
	var env Envelope
	if len(head.State) == 0 {
		// Bare state blob with no envelope.
		st, err := game.DecodeState(raw)
		if err != nil {
			return Envelope{}, err
		}
		env.State = st
		return env, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode save: %w", err)
	}
	st, err := game.DecodeState(head.State)
	if err != nil {
		return Envelope{}, err
	}
	env.State = st
	return env, nil
}

func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 64 {
		return ErrInvalidKey
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrInvalidKey
		}
	}
	return nil
}
