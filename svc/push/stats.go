package push

import (
	"context"
	"fmt"
	"math"
	"time"
)

// GetStats recomputes the tenant's delivery totals from the ledger: all time,
// the last 24 hours and the last 7 days.
func (d *Dispatcher) GetStats(ctx context.Context, tenantID string) (*DeliveryStats, error) {
	var (
		stats DeliveryStats
		now   = d.now().UTC()
	)
	windows := []struct {
		since time.Time
		dst   *WindowStats
	}{
		{time.Time{}, &stats.Total},
		{now.Add(-24 * time.Hour), &stats.Last24h},
		{now.Add(-7 * 24 * time.Hour), &stats.Last7d},
	}

	for _, w := range windows {
		totals, err := d.store.SumLogs(ctx, tenantID, w.since)
		if err != nil {
			return nil, fmt.Errorf("delivery stats: %w", err)
		}
		*w.dst = newWindowStats(totals)
	}
	return &stats, nil
}

func newWindowStats(t LedgerTotals) WindowStats {
	return WindowStats{
		Sent:         t.Sent,
		Delivered:    t.Delivered,
		Failed:       t.Failed,
		DeliveryRate: DeliveryRate(t.Delivered, t.Sent),
	}
}

// DeliveryRate returns delivered/sent in percent rounded to two decimals, or 0
// when nothing was sent.
func DeliveryRate(delivered, sent int64) float64 {
	if sent <= 0 {
		return 0
	}
	return math.Round(float64(delivered)/float64(sent)*100*100) / 100
}
