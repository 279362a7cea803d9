package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const novaLayout = "2006-01-02T15:04:05Z"

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable("INR", map[string]float64{
		"m1.tiny":   5.0,
		"m1.small":  10.0,
		"m1.medium": 20.0,
		"m1.large":  40.0,
		DefaultKey:  15.0,
	})
	require.NoError(t, err)
	return table
}

func TestNewTable(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		rates    map[string]float64
		wantErr  error
	}{
		{"valid", "INR", map[string]float64{DefaultKey: 1}, nil},
		{"missing default", "INR", map[string]float64{"m1.small": 10}, ErrNoDefault},
		{"nil rates", "INR", nil, ErrNoDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.currency, tt.rates)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewTable("", map[string]float64{DefaultKey: 1})
	assert.Error(t, err, "empty currency")

	_, err = NewTable("INR", map[string]float64{DefaultKey: 1, "m1.tiny": -2})
	assert.Error(t, err, "negative rate")
}

func TestTable_IsolatedFromInput(t *testing.T) {
	rates := map[string]float64{DefaultKey: 15, "m1.small": 10}
	table, err := NewTable("INR", rates)
	require.NoError(t, err)

	rates["m1.small"] = 999
	assert.Equal(t, 10.0, table.Rate("m1.small"))

	out := table.Rates()
	out["m1.small"] = 999
	assert.Equal(t, 10.0, table.Rate("m1.small"))
}

func TestTable_RateFallsBackToDefault(t *testing.T) {
	table := testTable(t)

	for _, flavor := range []string{"m1.xlarge", "unknown", "", "gpu.a100"} {
		assert.Equal(t, 15.0, table.Rate(flavor), flavor)
		assert.False(t, table.Known(flavor), flavor)
	}
	assert.Equal(t, 40.0, table.Rate("m1.large"))
	assert.Equal(t, []string{"m1.large", "m1.medium", "m1.small", "m1.tiny"}, table.Flavors())
	assert.Equal(t, "INR", table.Currency())
}

func TestCompute_TwoHoursSmall(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-2 * time.Hour).Format(novaLayout)

	b, err := Compute(created, "m1.small", testTable(t), now)
	require.NoError(t, err)

	assert.Equal(t, 2.0, b.UptimeHours)
	assert.Equal(t, 10.0, b.HourlyRate)
	assert.Equal(t, 20.0, b.TotalCost)
	assert.False(t, b.Unavailable)
	assert.False(t, b.Clamped)
}

func TestCompute_UnknownFlavorUsesDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-3 * time.Hour).Format(novaLayout)

	for _, flavor := range []string{"unknown", "m9.huge", ""} {
		b, err := Compute(created, flavor, testTable(t), now)
		require.NoError(t, err, flavor)
		assert.Equal(t, 15.0, b.HourlyRate, flavor)
		assert.Equal(t, 45.0, b.TotalCost, flavor)
	}
}

func TestCompute_FutureCreationClampsToZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(5 * time.Hour).Format(novaLayout)

	b, err := Compute(created, "m1.large", testTable(t), now)
	require.NoError(t, err)

	assert.Equal(t, 0.0, b.UptimeHours)
	assert.Equal(t, 40.0, b.HourlyRate)
	assert.Equal(t, 0.0, b.TotalCost)
	assert.True(t, b.Clamped)
	assert.False(t, b.Unavailable)
}

func TestCompute_MalformedTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, created := range []string{"", "yesterday", "2026-13-45T99:00:00Z", "1709294400"} {
		b, err := Compute(created, "m1.small", testTable(t), now)

		var costErr *CostError
		require.True(t, errors.As(err, &costErr), "created=%q", created)
		assert.Equal(t, Breakdown{Unavailable: true}, b, "created=%q", created)
		assert.Zero(t, b.UptimeHours)
		assert.Zero(t, b.HourlyRate)
		assert.Zero(t, b.TotalCost)
	}
}

func TestCompute_NilTable(t *testing.T) {
	b, err := Compute("2026-03-01T10:00:00Z", "m1.small", nil, time.Now())
	assert.Error(t, err)
	assert.True(t, b.Unavailable)
	assert.Zero(t, b.TotalCost)
}

func TestCost_NeverFails(t *testing.T) {
	b := Cost("garbage", "m1.small", testTable(t), time.Now())
	assert.True(t, b.Unavailable)
}

func TestCompute_AcceptsRFC3339Variants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, created := range []string{
		"2026-03-01T11:00:00Z",
		"2026-03-01T11:00:00.000000Z",
		"2026-03-01T16:30:00+05:30",
	} {
		b, err := Compute(created, "m1.tiny", testTable(t), now)
		require.NoError(t, err, created)
		assert.Equal(t, 1.0, b.UptimeHours, created)
		assert.Equal(t, 5.0, b.TotalCost, created)
	}
}

func TestCompute_RoundingProperties(t *testing.T) {
	table := testTable(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	offsets := []time.Duration{
		0,
		time.Second,
		37 * time.Minute,
		90 * time.Minute,
		7*time.Hour + 13*time.Minute + 11*time.Second,
		400 * time.Hour,
		-3 * time.Hour,
	}

	for _, flavor := range []string{"m1.tiny", "m1.small", "m1.medium", "m1.large", "other"} {
		for _, off := range offsets {
			created := now.Add(-off)
			b, err := Compute(created.Format(novaLayout), flavor, table, now)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, b.UptimeHours, 0.0)
			assert.GreaterOrEqual(t, b.TotalCost, 0.0)

			hours := math.Max(now.Sub(created).Seconds()/3600, 0)
			want := decimal.NewFromFloat(hours * table.Rate(flavor)).Round(2).InexactFloat64()
			assert.InDelta(t, want, b.TotalCost, 0.005, "flavor=%s offset=%s", flavor, off)
			assert.Equal(t, b.TotalCost, math.Round(b.TotalCost*100)/100)
		}
	}
}

func TestSum(t *testing.T) {
	assert.Equal(t, 0.0, Sum(nil))
	assert.Equal(t, 0.3, Sum([]float64{0.1, 0.2}))
	assert.Equal(t, 65.55, Sum([]float64{20, 45.55, 0}))
}
