package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter is the interface used by Collector to persist records.
// It exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, records []Record) error
}

// CollectorMetrics receives buffer and flush statistics.
type CollectorMetrics interface {
	SetCollectorBufferSize(n int)
	ObserveCollectorFlush(status string, seconds float64)
	IncCollectorRecords()
}

// Collector buffers records in memory and flushes them to the store in
// batches. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	metrics       CollectorMetrics
	buffer        []Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	stopped       chan struct{}
}

// NewCollector creates a Collector that flushes to store when the buffer
// reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		store:         store,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// SetMetrics sets the optional metrics sink. Call before Start.
func (c *Collector) SetMetrics(m CollectorMetrics) {
	c.metrics = m
}

// Start flushes buffered records on a timer. It blocks until Stop is called
// or ctx is cancelled, and flushes once more before returning.
func (c *Collector) Start(ctx context.Context) {
	defer close(c.stopped)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds a record to the buffer, flushing immediately when the buffer
// reaches batchSize.
func (c *Collector) Record(r Record) {
	c.mu.Lock()
	c.buffer = append(c.buffer, r)
	size := len(c.buffer)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncCollectorRecords()
		c.metrics.SetCollectorBufferSize(size)
	}

	if size >= c.batchSize {
		c.flush()
	}
}

// flush drains the buffer into the store. Errors are logged, not returned,
// so recording never blocks a request on the database.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Record, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := c.store.BatchInsert(ctx, batch)
	status := "ok"
	if err != nil {
		status = "error"
		slog.Error("failed to flush cost history", "count", len(batch), "error", err)
	} else {
		slog.Debug("cost history flushed", "count", len(batch))
	}

	if c.metrics != nil {
		c.metrics.ObserveCollectorFlush(status, time.Since(start).Seconds())
		c.mu.Lock()
		size := len(c.buffer)
		c.mu.Unlock()
		c.metrics.SetCollectorBufferSize(size)
	}
}

// Stop signals Start to exit after a final flush and waits for it. It is
// safe to call more than once; it must only be called after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
}
