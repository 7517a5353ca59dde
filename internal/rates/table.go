package rates

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

const defaultKey = "default"

// TaxRate is one tax component applied to a subtotal.
type TaxRate struct {
	Type string  `yaml:"type"`
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
}

// DiscountRule applies a rate-based discount when category and user type
// match. Empty selector fields match anything.
type DiscountRule struct {
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	UserType string  `yaml:"user_type"`
	Rate     float64 `yaml:"rate"`
}

// Snapshot is an immutable view of the rate table. Request-time reads never
// observe a partially applied reload.
type Snapshot struct {
	Taxes       map[string][]TaxRate `yaml:"taxes"`        // keyed by "category/region", "category" or "default"
	PlatformFee map[string]float64   `yaml:"platform_fee"` // keyed by user type or "default"
	Discounts   []DiscountRule       `yaml:"discounts"`
}

// TaxRatesFor returns the tax rates for a category and region, falling back
// to the category-wide entry and then the default tier. Absence of context
// must never block a quote.
func (s *Snapshot) TaxRatesFor(category, region string) []TaxRate {
	if category != "" && region != "" {
		if rates, ok := s.Taxes[category+"/"+region]; ok {
			return rates
		}
	}
	if category != "" {
		if rates, ok := s.Taxes[category]; ok {
			return rates
		}
	}
	return s.Taxes[defaultKey]
}

// PlatformFeeRate returns the platform fee rate for a user type, falling
// back to the default tier for unknown types.
func (s *Snapshot) PlatformFeeRate(userType string) float64 {
	if userType != "" {
		if rate, ok := s.PlatformFee[userType]; ok {
			return rate
		}
	}
	return s.PlatformFee[defaultKey]
}

// DiscountRate returns the best matching discount rate, or zero.
func (s *Snapshot) DiscountRate(category, userType string) float64 {
	var best float64
	for _, rule := range s.Discounts {
		if rule.Category != "" && rule.Category != category {
			continue
		}
		if rule.UserType != "" && rule.UserType != userType {
			continue
		}
		if rule.Rate > best {
			best = rule.Rate
		}
	}
	return best
}

// Table holds the current rate snapshot. Reads take a snapshot pointer;
// Reload swaps the pointer atomically so in-flight quotes keep their view.
type Table struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewTable(snap *Snapshot) *Table {
	if snap == nil {
		snap = &Snapshot{}
	}
	return &Table{snap: snap}
}

func NewTableFromFile(path string) (*Table, error) {
	snap, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return NewTable(snap), nil
}

func (t *Table) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Reload re-reads the rate file and swaps the snapshot. Triggered by SIGHUP
// on the server; request handlers never call this.
func (t *Table) Reload(path string) error {
	snap, err := loadSnapshot(path)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
	return nil
}

func loadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates file: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse rates file: %w", err)
	}

	if snap.Taxes == nil {
		snap.Taxes = map[string][]TaxRate{}
	}
	if snap.PlatformFee == nil {
		snap.PlatformFee = map[string]float64{}
	}

	return &snap, nil
}
