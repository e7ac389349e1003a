package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

type fakeSource struct {
	row   domain.StatsRow
	err   error
	calls int
}

func (f *fakeSource) DashboardCounts(ctx context.Context, threshold float64) (*domain.StatsRow, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	row := f.row
	return &row, nil
}

type fakeCache struct {
	data map[string][]byte
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.data[key], nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Ping(ctx context.Context) error { return nil }
func (c *fakeCache) Close() error                   { return nil }

func TestDashboard(t *testing.T) {
	src := &fakeSource{row: domain.StatsRow{
		TotalTransactions: 120,
		TotalAmount:       8400000,
		HighRiskCount:     7,
		BlockedCount:      4,
		BlockedAmount:     5200000,
	}}

	agg := NewAggregator(src, newFakeCache(), time.Minute)
	stats, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}

	if stats.TotalTransactions != 120 {
		t.Errorf("expected 120 transactions, got %d", stats.TotalTransactions)
	}
	if stats.FraudDetected != 7 {
		t.Errorf("expected 7 fraud detected, got %d", stats.FraudDetected)
	}
	if stats.BlockedCount != 4 || stats.BlockedAmount != 5200000 {
		t.Errorf("unexpected blocked stats: %d / %.0f", stats.BlockedCount, stats.BlockedAmount)
	}
	if stats.MoneySaved != "₦5.2M" {
		t.Errorf("expected ₦5.2M, got %s", stats.MoneySaved)
	}
	if stats.TotalAmountProcessed != 8400000 {
		t.Errorf("expected 8400000 processed, got %.0f", stats.TotalAmountProcessed)
	}
}

func TestDashboardEmptyGraph(t *testing.T) {
	agg := NewAggregator(&fakeSource{}, nil, time.Minute)

	stats, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if stats.TotalTransactions != 0 || stats.BlockedAmount != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if stats.MoneySaved != "₦0" {
		t.Errorf("expected ₦0, got %s", stats.MoneySaved)
	}
}

func TestDashboardUsesCache(t *testing.T) {
	src := &fakeSource{row: domain.StatsRow{TotalTransactions: 10}}
	agg := NewAggregator(src, newFakeCache(), time.Minute)
	ctx := context.Background()

	if _, err := agg.Dashboard(ctx); err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if _, err := agg.Dashboard(ctx); err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("expected 1 source query, got %d", src.calls)
	}
}

func TestDashboardToleratesCacheFailure(t *testing.T) {
	src := &fakeSource{row: domain.StatsRow{TotalTransactions: 10}}
	agg := NewAggregator(src, &fakeCache{err: errors.New("cache down")}, time.Minute)

	stats, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if stats.TotalTransactions != 10 {
		t.Errorf("expected 10 transactions, got %d", stats.TotalTransactions)
	}
}

func TestDashboardSourceError(t *testing.T) {
	wantErr := errors.New("query failed")
	agg := NewAggregator(&fakeSource{err: wantErr}, nil, time.Minute)

	_, err := agg.Dashboard(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   float64
		expected string
	}{
		{0, "₦0"},
		{40000, "₦0"},
		{5000000, "₦5M"},
		{5200000, "₦5.2M"},
		{1300000, "₦1.3M"},
		{12345678, "₦12.3M"},
		{950000, "₦1M"},
	}

	for _, tt := range tests {
		if got := FormatMoney(tt.amount); got != tt.expected {
			t.Errorf("FormatMoney(%v) = %s, want %s", tt.amount, got, tt.expected)
		}
	}
}
