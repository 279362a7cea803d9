package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Breakdown is the derived cost of one instance. All three figures are
// rounded to two decimal places; Unavailable marks the zero result produced
// when the cost could not be computed.
type Breakdown struct {
	UptimeHours float64 `json:"uptime_hours"`
	HourlyRate  float64 `json:"hourly_rate"`
	TotalCost   float64 `json:"total_cost"`
	Unavailable bool    `json:"unavailable,omitempty"`

	// Clamped is set when the creation time was after now.
	Clamped bool `json:"-"`
}

// CostError describes why a cost could not be computed.
type CostError struct {
	Reason string
	Err    error
}

func (e *CostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("computing cost: %s: %v", e.Reason, e.Err)
	}
	return "computing cost: " + e.Reason
}

func (e *CostError) Unwrap() error { return e.Err }

var errEmptyTimestamp = errors.New("empty timestamp")

// Compute prices an instance created at createdAt on flavor against table at
// instant now. On any error the zero, Unavailable breakdown is returned with
// a *CostError; the breakdown is always usable.
//
// Uptime before now is clamped to zero so a creation time in the future can
// never produce a negative cost.
func Compute(createdAt, flavor string, table *Table, now time.Time) (Breakdown, error) {
	if table == nil {
		return unavailable(), &CostError{Reason: "no pricing table"}
	}

	created, err := ParseTimestamp(createdAt)
	if err != nil {
		return unavailable(), &CostError{Reason: "invalid creation timestamp", Err: err}
	}

	uptime := decimal.NewFromFloat(now.Sub(created).Seconds()).Div(decimal.NewFromInt(3600))
	clamped := false
	if uptime.IsNegative() {
		uptime = decimal.Zero
		clamped = true
	}

	rate := decimal.NewFromFloat(table.Rate(flavor))
	total := uptime.Mul(rate)

	return Breakdown{
		UptimeHours: round2(uptime),
		HourlyRate:  round2(rate),
		TotalCost:   round2(total),
		Clamped:     clamped,
	}, nil
}

// Cost is Compute without the error. It never fails.
func Cost(createdAt, flavor string, table *Table, now time.Time) Breakdown {
	b, _ := Compute(createdAt, flavor, table, now)
	return b
}

// Sum adds rounded totals and rounds the result to two decimal places.
func Sum(totals []float64) float64 {
	sum := decimal.Zero
	for _, v := range totals {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return round2(sum)
}

// ParseTimestamp accepts the compute service's creation timestamp format
// ("2006-01-02T15:04:05Z") and any RFC 3339 variant.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func unavailable() Breakdown {
	return Breakdown{Unavailable: true}
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
