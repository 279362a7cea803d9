// Package history keeps a running record of fleet cost: one summary row per
// successful aggregation, buffered in memory and written to Postgres in
// batches.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/cloudtally/internal/inventory"
)

// Record summarises one aggregation. Snapshots themselves are never stored.
type Record struct {
	ID            string    `json:"id"`
	TakenAt       time.Time `json:"taken_at"`
	Principal     string    `json:"principal"`
	InstanceCount int       `json:"instance_count"`
	TotalCost     float64   `json:"total_cost"`
	Currency      string    `json:"currency"`
	Degraded      []string  `json:"degraded"`
}

// NewRecord summarises snap on behalf of principal.
func NewRecord(principal string, snap *inventory.Snapshot) Record {
	degraded := make([]string, 0, len(snap.Degraded))
	for _, k := range snap.Degraded {
		degraded = append(degraded, string(k))
	}
	return Record{
		ID:            uuid.NewString(),
		TakenAt:       snap.GeneratedAt,
		Principal:     principal,
		InstanceCount: len(snap.Instances),
		TotalCost:     snap.PricingInfo.TotalCost,
		Currency:      snap.PricingInfo.Currency,
		Degraded:      degraded,
	}
}

// Query filters a listing. Zero values mean no filter; Limit is capped by
// the caller.
type Query struct {
	Principal string
	Since     time.Time
	Limit     int
}
