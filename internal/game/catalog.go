package game

import (
	"fmt"
	"sort"
)

// AssetDefinition is an immutable catalog entry for an investment.
type AssetDefinition struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	BasePriceMicros       int64   `json:"base_price_micros"`
	BaseIncomeMicros      int64   `json:"base_income_micros"`
	PriceGrowthMultiplier float64 `json:"price_growth_multiplier"`
}

// BusinessDefinition is an immutable catalog entry for a business.
type BusinessDefinition struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	BasePriceMicros       int64   `json:"base_price_micros"`
	BaseIncomeMicros      int64   `json:"base_income_micros"`
	PriceGrowthMultiplier float64 `json:"price_growth_multiplier"`
}

type Catalog struct {
	assets     []AssetDefinition
	businesses []BusinessDefinition
	assetIdx   map[string]int
	bizIdx     map[string]int
}

func NewCatalog(assets []AssetDefinition, businesses []BusinessDefinition) (*Catalog, error) {
	c := &Catalog{
		assets:     append([]AssetDefinition(nil), assets...),
		businesses: append([]BusinessDefinition(nil), businesses...),
		assetIdx:   make(map[string]int, len(assets)),
		bizIdx:     make(map[string]int, len(businesses)),
	}
	for i, a := range c.assets {
		if err := validateEntry(a.ID, a.BasePriceMicros, a.BaseIncomeMicros, a.PriceGrowthMultiplier); err != nil {
			return nil, err
		}
		if _, dup := c.assetIdx[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %q", ErrInvalidCatalog, a.ID)
		}
		c.assetIdx[a.ID] = i
	}
	for i, b := range c.businesses {
		if err := validateEntry(b.ID, b.BasePriceMicros, b.BaseIncomeMicros, b.PriceGrowthMultiplier); err != nil {
			return nil, err
		}
		if _, dup := c.bizIdx[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate business %q", ErrInvalidCatalog, b.ID)
		}
		c.bizIdx[b.ID] = i
	}
	return c, nil
}

func validateEntry(id string, price, income int64, growth float64) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if price <= 0 {
		return fmt.Errorf("%w: %s price must be > 0", ErrInvalidCatalog, id)
	}
	if income < 0 {
		return fmt.Errorf("%w: %s income must be >= 0", ErrInvalidCatalog, id)
	}
	if growth < 1 {
		return fmt.Errorf("%w: %s growth must be >= 1", ErrInvalidCatalog, id)
	}
	return nil
}

func (c *Catalog) Asset(id string) (AssetDefinition, error) {
	i, ok := c.assetIdx[id]
	if !ok {
		return AssetDefinition{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return c.assets[i], nil
}

func (c *Catalog) Business(id string) (BusinessDefinition, error) {
	i, ok := c.bizIdx[id]
	if !ok {
		return BusinessDefinition{}, fmt.Errorf("%w: %s", ErrUnknownBusiness, id)
	}
	return c.businesses[i], nil
}

func (c *Catalog) Assets() []AssetDefinition {
	return append([]AssetDefinition(nil), c.assets...)
}

func (c *Catalog) Businesses() []BusinessDefinition {
	return append([]BusinessDefinition(nil), c.businesses...)
}

// AssetIDs returns asset ids in sorted order.
func (c *Catalog) AssetIDs() []string {
	out := make([]string, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a.ID)
	}
	sort.Strings(out)
	return out
}

func DefaultCatalog() *Catalog {
	assets := []AssetDefinition{
		{"savings", "Savings Account", 15 * MicrosPerCoin, 100_000, 1.15},
		{"bonds", "Government Bonds", 100 * MicrosPerCoin, 300_000, 1.15},
		{"index_fund", "Index Fund", 1_100 * MicrosPerCoin, 8 * MicrosPerCoin, 1.15},
		{"tech_stock", "Tech Stock", 12_000 * MicrosPerCoin, 47 * MicrosPerCoin, 1.15},
		{"real_estate", "Real Estate", 130_000 * MicrosPerCoin, 260 * MicrosPerCoin, 1.15},
		{"crypto", "Crypto Portfolio", 1_400_000 * MicrosPerCoin, 1_400 * MicrosPerCoin, 1.17},
	}
	businesses := []BusinessDefinition{
		{"lemonade", "Lemonade Stand", 500 * MicrosPerCoin, 2 * MicrosPerCoin, 1.12},
		{"food_truck", "Food Truck", 7_500 * MicrosPerCoin, 25 * MicrosPerCoin, 1.13},
		{"coffee_shop", "Coffee Shop", 60_000 * MicrosPerCoin, 150 * MicrosPerCoin, 1.14},
		{"factory", "Factory", 900_000 * MicrosPerCoin, 1_800 * MicrosPerCoin, 1.15},
		{"bank", "Private Bank", 15_000_000 * MicrosPerCoin, 22_000 * MicrosPerCoin, 1.16},
	}
	c, err := NewCatalog(assets, businesses)
	if err != nil {
		panic(err)
	}
	return c
}
