// Package stats aggregates dashboard metrics over the transaction graph.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// StatsSource supplies the raw aggregate row. Satisfied by
// domain.GraphStore.
type StatsSource interface {
	DashboardCounts(ctx context.Context, highRiskThreshold float64) (*domain.StatsRow, error)
}

// Aggregator serves dashboard stats, caching results because the
// underlying query scans the full transaction set. Cache failures are
// never surfaced; the aggregate query is the source of truth.
type Aggregator struct {
	src   StatsSource
	cache domain.Cache
	ttl   time.Duration
}

// NewAggregator creates an aggregator. The cache is optional.
func NewAggregator(src StatsSource, cache domain.Cache, ttl time.Duration) *Aggregator {
	return &Aggregator{src: src, cache: cache, ttl: ttl}
}

// Dashboard returns the aggregated dashboard view. An empty graph is a
// valid state and yields all-zero stats with MoneySaved rendered as
// "₦0".
func (a *Aggregator) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, domain.CacheKeyDashboard); err == nil && cached != nil {
			var stats domain.DashboardStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	row, err := a.src.DashboardCounts(ctx, domain.HighRiskThreshold)
	if err != nil {
		return nil, fmt.Errorf("aggregating dashboard counts: %w", err)
	}

	stats := &domain.DashboardStats{
		TotalTransactions:    row.TotalTransactions,
		FraudDetected:        row.HighRiskCount,
		BlockedCount:         row.BlockedCount,
		BlockedAmount:        row.BlockedAmount,
		MoneySaved:           FormatMoney(row.BlockedAmount),
		TotalAmountProcessed: row.TotalAmount,
	}

	if a.cache != nil {
		if encoded, err := json.Marshal(stats); err == nil {
			a.cache.Set(ctx, domain.CacheKeyDashboard, encoded, a.ttl)
		}
	}

	return stats, nil
}

// FormatMoney renders an amount in millions with a naira prefix, e.g.
// "₦5M" or "₦1.3M". Amounts that round to zero millions render as
// "₦0", so an empty graph and a small blocked total read the same.
func FormatMoney(amount float64) string {
	millions := math.Round(amount/1e6*10) / 10
	if millions == 0 {
		return "₦0"
	}
	return "₦" + strconv.FormatFloat(millions, 'f', -1, 64) + "M"
}
