package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/cloudtally/internal/inventory"
)

// mockStore records all batches that were inserted.
type mockStore struct {
	mu       sync.Mutex
	batches  [][]Record
	insertFn func(ctx context.Context, records []Record) error
}

func (m *mockStore) BatchInsert(ctx context.Context, records []Record) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, records)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStore) totalInserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

// mockMetrics counts collector callbacks.
type mockMetrics struct {
	mu         sync.Mutex
	records    int
	flushes    map[string]int
	lastBuffer int
}

func (m *mockMetrics) SetCollectorBufferSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBuffer = n
}

func (m *mockMetrics) ObserveCollectorFlush(status string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushes == nil {
		m.flushes = make(map[string]int)
	}
	m.flushes[status]++
}

func (m *mockMetrics) IncCollectorRecords() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records++
}

func sampleRecord(principal string) Record {
	return Record{
		ID:            principal + "-" + time.Now().Format(time.RFC3339Nano),
		TakenAt:       time.Now(),
		Principal:     principal,
		InstanceCount: 2,
		TotalCost:     30,
		Currency:      "INR",
	}
}

func TestNewRecord(t *testing.T) {
	generated := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	snap := &inventory.Snapshot{
		Instances: []inventory.Instance{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		PricingInfo: inventory.PricingInfo{
			TotalCost: 42.5,
			Currency:  "INR",
		},
		Degraded:    []inventory.Kind{inventory.KindVolumes, inventory.KindImages},
		GeneratedAt: generated,
	}

	r := NewRecord("alice", snap)

	if r.ID == "" {
		t.Error("expected an id")
	}
	if !r.TakenAt.Equal(generated) {
		t.Errorf("expected taken_at %v, got %v", generated, r.TakenAt)
	}
	if r.Principal != "alice" || r.InstanceCount != 3 || r.TotalCost != 42.5 || r.Currency != "INR" {
		t.Errorf("unexpected record %+v", r)
	}
	if len(r.Degraded) != 2 || r.Degraded[0] != "volumes" || r.Degraded[1] != "images" {
		t.Errorf("unexpected degraded %v", r.Degraded)
	}

	if other := NewRecord("alice", snap); other.ID == r.ID {
		t.Error("expected distinct ids per record")
	}
}

func TestNewRecord_NoDegradedIsEmptySlice(t *testing.T) {
	r := NewRecord("bob", &inventory.Snapshot{})
	if r.Degraded == nil || len(r.Degraded) != 0 {
		t.Errorf("expected empty non-nil degraded, got %#v", r.Degraded)
	}
}

func TestCollector_RecordAddsToBuffer(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	c.Record(sampleRecord("a"))
	c.Record(sampleRecord("b"))

	c.mu.Lock()
	bufLen := len(c.buffer)
	c.mu.Unlock()

	if bufLen != 2 {
		t.Fatalf("expected buffer length 2, got %d", bufLen)
	}
	if ms.totalInserted() != 0 {
		t.Fatalf("expected 0 inserted before flush, got %d", ms.totalInserted())
	}
}

func TestCollector_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		records   int
		wantFlush int
	}{
		{"exact batch size triggers flush", 3, 3, 3},
		{"under batch size does not flush", 5, 3, 0},
		{"double batch size triggers two flushes", 2, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			c := NewCollector(ms, tt.batchSize, time.Hour)

			for i := 0; i < tt.records; i++ {
				c.Record(sampleRecord("a"))
			}

			if got := ms.totalInserted(); got != tt.wantFlush {
				t.Errorf("expected %d flushed records, got %d", tt.wantFlush, got)
			}
		})
	}
}

func TestCollector_StopDoesFinalFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	go c.Start(context.Background())

	c.Record(sampleRecord("a"))
	c.Record(sampleRecord("b"))
	c.Record(sampleRecord("c"))

	c.Stop()

	if got := ms.totalInserted(); got != 3 {
		t.Fatalf("expected 3 records after Stop, got %d", got)
	}

	// A second Stop must not panic or block.
	c.Stop()
}

func TestCollector_ContextCancelFlushes(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Start(ctx)

	c.Record(sampleRecord("a"))
	cancel()
	c.Stop()

	if got := ms.totalInserted(); got != 1 {
		t.Fatalf("expected 1 record after cancel, got %d", got)
	}
}

func TestCollector_TimerFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	c.Record(sampleRecord("a"))

	time.Sleep(200 * time.Millisecond)

	if got := ms.totalInserted(); got != 1 {
		t.Fatalf("expected 1 record after timer flush, got %d", got)
	}

	c.Stop()
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 10, time.Hour)

	go c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(sampleRecord("a"))
		}()
	}
	wg.Wait()

	c.Stop()

	if got := ms.totalInserted(); got != 50 {
		t.Fatalf("expected 50 records, got %d", got)
	}
}

func TestCollector_Metrics(t *testing.T) {
	failing := true
	ms := &mockStore{}
	ms.insertFn = func(ctx context.Context, records []Record) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	}

	mm := &mockMetrics{}
	c := NewCollector(ms, 2, time.Hour)
	c.SetMetrics(mm)

	c.Record(sampleRecord("a"))
	if mm.lastBuffer != 1 {
		t.Errorf("expected buffer gauge 1, got %d", mm.lastBuffer)
	}
	c.Record(sampleRecord("b")) // flush fails

	failing = false
	c.Record(sampleRecord("c"))
	c.Record(sampleRecord("d")) // flush succeeds

	if mm.records != 4 {
		t.Errorf("expected 4 recorded, got %d", mm.records)
	}
	if mm.flushes["error"] != 1 || mm.flushes["ok"] != 1 {
		t.Errorf("unexpected flush counts %v", mm.flushes)
	}
	if mm.lastBuffer != 0 {
		t.Errorf("expected buffer gauge 0 after flush, got %d", mm.lastBuffer)
	}
}

func TestBuildInsert(t *testing.T) {
	records := []Record{sampleRecord("a"), sampleRecord("b")}
	records[1].Degraded = []string{"volumes"}

	query, args := buildInsert(records)

	if !strings.Contains(query, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)") {
		t.Errorf("unexpected placeholders in %q", query)
	}
	if !strings.Contains(query, "ON CONFLICT (id) DO NOTHING") {
		t.Error("expected conflict clause")
	}
	if len(args) != 14 {
		t.Fatalf("expected 14 args, got %d", len(args))
	}
	if d, ok := args[6].([]string); !ok || d == nil || len(d) != 0 {
		t.Errorf("expected empty degraded slice for first record, got %#v", args[6])
	}
	if d, ok := args[13].([]string); !ok || len(d) != 1 || d[0] != "volumes" {
		t.Errorf("expected degraded [volumes] for second record, got %#v", args[13])
	}
}

func TestBuildList(t *testing.T) {
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		q         Query
		wantWhere string
		wantLimit string
		wantArgs  int
	}{
		{"no filters default limit", Query{}, "", "LIMIT $1", 1},
		{"principal", Query{Principal: "alice", Limit: 5}, "WHERE principal = $1", "LIMIT $2", 2},
		{"principal and since", Query{Principal: "alice", Since: since, Limit: 5}, "WHERE principal = $1 AND taken_at >= $2", "LIMIT $3", 3},
		{"since only", Query{Since: since}, "WHERE taken_at >= $1", "LIMIT $2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildList(tt.q)
			if tt.wantWhere == "" && strings.Contains(query, "WHERE") {
				t.Errorf("expected no WHERE clause in %q", query)
			}
			if tt.wantWhere != "" && !strings.Contains(query, tt.wantWhere) {
				t.Errorf("expected %q in %q", tt.wantWhere, query)
			}
			if !strings.HasSuffix(query, tt.wantLimit) {
				t.Errorf("expected query to end with %q, got %q", tt.wantLimit, query)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("expected %d args, got %d", tt.wantArgs, len(args))
			}
		})
	}

	_, args := buildList(Query{})
	if args[0] != 50 {
		t.Errorf("expected default limit 50, got %v", args[0])
	}
}
