package game

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	MicrosPerCoin = int64(1_000_000)

	StarterBalanceMicros    = int64(0)
	StarterClickValueMicros = MicrosPerCoin

	ClickUpgradeBaseMicros = int64(50) * MicrosPerCoin
	ClickUpgradeGrowth     = 1.6
	ClickUpgradeStepMicros = MicrosPerCoin

	// SellRatioBps is the share of a unit's current price refunded on sale.
	SellRatioBps = int64(7_500)

	XPPerClick    = int64(1)
	XPPerUnit     = int64(10)
	XPPerBusiness = int64(25)

	CasinoWinProbability = 0.48

	StateVersion = 1
)

var (
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrUnknownBusiness      = errors.New("unknown business")
	ErrUnknownBoosterKind   = errors.New("unknown booster kind")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidStake         = errors.New("stake must be > 0 and within balance")
	ErrInvalidCatalog       = errors.New("invalid catalog")
)

var idRE = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

// ValidateID reports whether id is a usable catalog identifier.
func ValidateID(id string) error {
	if !idRE.MatchString(strings.TrimSpace(id)) {
		return fmt.Errorf("%w: id %q must be 2-32 lowercase letters, digits or underscores", ErrInvalidCatalog, id)
	}
	return nil
}

// XPForLevel is the experience needed to advance from level to level+1.
func XPForLevel(level int64) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(100 * math.Pow(float64(level), 1.5)))
}

func applyBps(v, bps int64) int64 {
	return int64(math.Round(float64(v) * float64(bps) / 10_000))
}
