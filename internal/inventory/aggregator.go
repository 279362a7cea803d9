// Package inventory aggregates the backend's resource collections into one
// cost-annotated Snapshot.
package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/pricing"
)

// DefaultFetchTimeout bounds each backend listing when none is configured.
const DefaultFetchTimeout = 30 * time.Second

// MetricsRecorder is an optional sink for aggregation metrics.
type MetricsRecorder interface {
	ObserveFetch(kind, outcome string, seconds float64)
	IncNormalizationDrop(kind string)
	IncAggregation(status string)
	SetFleetCost(currency string, total float64)
}

// FetchResult is the outcome of one kind's listing.
type FetchResult struct {
	Kind    Kind
	Policy  Policy
	Count   int
	Err     error
	Elapsed time.Duration
}

// Outcome is "ok", "degraded" or "failed".
func (r FetchResult) Outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case r.Policy == DegradeToEmpty:
		return "degraded"
	default:
		return "failed"
	}
}

// fetchTask is one row of the fan-out table: which kind and how to list it.
// run stores the records it lists and returns their count.
type fetchTask struct {
	kind Kind
	run  func(ctx context.Context) (int, error)
}

// into adapts a typed listing into a fetchTask body writing to dst.
func into[T any](dst *[]T, list func(context.Context) ([]T, error)) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		items, err := list(ctx)
		if err != nil {
			return 0, err
		}
		*dst = items
		return len(items), nil
	}
}

// Aggregator fans out to every resource kind, applies each kind's failure
// policy and assembles the Snapshot. It holds no per-request state and is safe
// for concurrent use.
type Aggregator struct {
	table   *pricing.Table
	timeout time.Duration
	now     func() time.Time
	metrics MetricsRecorder
}

// New creates an Aggregator pricing instances against table. Each backend
// call is bounded by timeout.
func New(table *pricing.Table, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Aggregator{
		table:   table,
		timeout: timeout,
		now:     time.Now,
	}
}

// SetMetrics sets the optional metrics recorder.
func (a *Aggregator) SetMetrics(m MetricsRecorder) {
	a.metrics = m
}

// raw holds the listings of one aggregation before normalization.
type raw struct {
	flavors  []cloud.Flavor
	servers  []cloud.Server
	networks []cloud.Network
	volumes  []cloud.Volume
	images   []cloud.Image
	keypairs []cloud.Keypair
}

// Aggregate builds a Snapshot from the backend behind sess. It fails with an
// *AggregationError when a fatal kind cannot be fetched; other kinds degrade
// to empty collections.
func (a *Aggregator) Aggregate(ctx context.Context, sess *cloud.Session) (*Snapshot, error) {
	if sess == nil || sess.Backend == nil {
		return nil, errors.New("aggregate: nil session")
	}
	b := sess.Backend

	slog.Info("aggregation started", "principal", sess.Principal, "project", sess.Project, "region", sess.Region)

	var r raw
	tasks := []fetchTask{
		{KindFlavors, into(&r.flavors, b.ListFlavors)},
		{KindInstances, into(&r.servers, b.ListServers)},
		{KindNetworks, into(&r.networks, b.ListNetworks)},
		{KindVolumes, into(&r.volumes, b.ListVolumes)},
		{KindImages, into(&r.images, b.ListImages)},
		{KindKeypairs, into(&r.keypairs, b.ListKeypairs)},
	}

	results, err := a.fanOut(ctx, tasks)
	if err != nil {
		slog.Error("aggregation aborted", "error", err)
		a.incAggregation("failed")
		return nil, err
	}

	var degraded []Kind
	for _, res := range results {
		if res.Err != nil {
			degraded = append(degraded, res.Kind)
		}
	}

	now := a.now().UTC()
	flavors := newFlavorLookup(r.flavors)
	onDrop := a.onDrop

	instances := normalizeAll(KindInstances, r.servers, func(s cloud.Server) (Instance, error) {
		return normalizeInstance(s, flavors, a.table, now)
	}, onDrop)

	totals := make([]float64, 0, len(instances))
	for _, inst := range instances {
		totals = append(totals, inst.Pricing.TotalCost)
	}

	snap := &Snapshot{
		Instances: instances,
		Networks:  normalizeAll(KindNetworks, r.networks, normalizeNetwork, onDrop),
		Volumes:   normalizeAll(KindVolumes, r.volumes, normalizeVolume, onDrop),
		Images:    normalizeAll(KindImages, r.images, normalizeImage, onDrop),
		Keypairs:  normalizeAll(KindKeypairs, r.keypairs, normalizeKeypair, onDrop),
		PricingInfo: PricingInfo{
			TotalCost: pricing.Sum(totals),
			Currency:  a.table.Currency(),
			Rates:     a.table.Rates(),
		},
		Degraded:    degraded,
		GeneratedAt: now,
	}

	if len(degraded) > 0 {
		a.incAggregation("degraded")
	} else {
		a.incAggregation("ok")
	}
	if a.metrics != nil {
		a.metrics.SetFleetCost(snap.PricingInfo.Currency, snap.PricingInfo.TotalCost)
	}

	slog.Info("aggregation completed",
		"instances", len(snap.Instances),
		"networks", len(snap.Networks),
		"volumes", len(snap.Volumes),
		"images", len(snap.Images),
		"keypairs", len(snap.Keypairs),
		"total_cost", snap.PricingInfo.TotalCost,
		"currency", snap.PricingInfo.Currency,
		"degraded", degraded,
	)
	return snap, nil
}

// fanOut runs every task concurrently. The first fatal failure cancels the
// remaining calls and is returned as an *AggregationError; degradable
// failures are only recorded in their FetchResult.
func (a *Aggregator) fanOut(ctx context.Context, tasks []fetchTask) ([]FetchResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]FetchResult, len(tasks))

	for i, task := range tasks {
		g.Go(func() error {
			res := a.fetch(gctx, task)
			results[i] = res
			if res.Err != nil && res.Policy == Fatal {
				return &AggregationError{Kind: res.Kind, Err: res.Err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// fetch runs one listing under the per-call timeout and reports it.
func (a *Aggregator) fetch(ctx context.Context, task fetchTask) FetchResult {
	policy := PolicyFor(task.kind)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	slog.Debug("fetching resources", "kind", task.kind)
	start := time.Now()
	count, err := task.run(callCtx)
	elapsed := time.Since(start)

	res := FetchResult{Kind: task.kind, Policy: policy, Count: count, Elapsed: elapsed}
	if err != nil {
		res.Count = 0
		res.Err = &FetchError{Kind: task.kind, Err: err}
		slog.Error("fetch failed",
			"kind", task.kind,
			"policy", policy.String(),
			"class", classifyFetchError(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	} else {
		slog.Info("fetched resources", "kind", task.kind, "count", count, "duration_ms", elapsed.Milliseconds())
	}

	if a.metrics != nil {
		outcome := res.Outcome()
		if err != nil {
			outcome = classifyFetchError(err)
		}
		a.metrics.ObserveFetch(string(task.kind), outcome, elapsed.Seconds())
	}
	return res
}

func (a *Aggregator) onDrop(kind Kind) {
	if a.metrics != nil {
		a.metrics.IncNormalizationDrop(string(kind))
	}
}

func (a *Aggregator) incAggregation(status string) {
	if a.metrics != nil {
		a.metrics.IncAggregation(status)
	}
}
