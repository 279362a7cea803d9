// Package pricing holds the flavor rate table and the per-instance cost
// calculator.
package pricing

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

// DefaultKey names the rate used for flavors absent from the table.
const DefaultKey = "default"

// ErrNoDefault is returned when a table is built without a default rate.
var ErrNoDefault = errors.New("pricing table has no default rate")

// Table maps flavor names to hourly rates in a single currency. It is built
// once at start-up and never mutated, so concurrent reads need no locking.
type Table struct {
	currency string
	rates    map[string]float64
}

// NewTable copies rates into an immutable Table. The default entry is
// required and rates may not be negative.
func NewTable(currency string, rates map[string]float64) (*Table, error) {
	if currency == "" {
		return nil, errors.New("pricing currency is required")
	}
	if _, ok := rates[DefaultKey]; !ok {
		return nil, ErrNoDefault
	}
	for name, rate := range rates {
		if rate < 0 {
			return nil, fmt.Errorf("negative rate %v for flavor %q", rate, name)
		}
	}
	return &Table{currency: currency, rates: maps.Clone(rates)}, nil
}

// Rate returns the hourly rate for flavor, falling back to the default rate.
func (t *Table) Rate(flavor string) float64 {
	if r, ok := t.rates[flavor]; ok {
		return r
	}
	return t.rates[DefaultKey]
}

// Known reports whether flavor has its own entry.
func (t *Table) Known(flavor string) bool {
	_, ok := t.rates[flavor]
	return ok
}

// Currency returns the table's currency code.
func (t *Table) Currency() string {
	return t.currency
}

// Rates returns a copy of the table for display.
func (t *Table) Rates() map[string]float64 {
	return maps.Clone(t.rates)
}

// Flavors returns the flavor names with their own entry, sorted, excluding the
// default.
func (t *Table) Flavors() []string {
	names := make([]string, 0, len(t.rates))
	for name := range t.rates {
		if name != DefaultKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
