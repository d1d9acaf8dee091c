package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
)

func testRates() config.CreditsConfig {
	return config.CreditsConfig{PerThousandTokens: 2.0, PerSearch: 0.5, PerPost: 3.0}
}

func TestCreditService_PricesUsage(t *testing.T) {
	ledger := &memLedger{}
	s := NewCreditService(ledger, testRates(), nil)
	ctx := context.Background()

	s.RecordModelUsage(ctx, "r1", 750, 250) // 1000 tokens at 2.0/1k
	s.RecordSearch(ctx, "r1")
	s.RecordPost(ctx, "r1")

	entries, err := ledger.ListRunCredits(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.InDelta(t, 2.0, entries[0].Amount, 1e-9)
	assert.Equal(t, core.CreditModelInference, entries[0].Category)
	assert.InDelta(t, 0.5, entries[1].Amount, 1e-9)
	assert.InDelta(t, 3.0, entries[2].Amount, 1e-9)

	total, err := s.RunTotal(ctx, "r1")
	require.NoError(t, err)
	assert.InDelta(t, 5.5, total, 1e-9)
}

func TestCreditService_InvalidEntryDropped(t *testing.T) {
	ledger := &memLedger{}
	s := NewCreditService(ledger, testRates(), nil)

	// Missing run id never reaches the ledger.
	s.RecordSearch(context.Background(), "")

	entries, err := ledger.ListCredits(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreditService_SummaryTrend(t *testing.T) {
	ledger := &memLedger{}
	s := NewCreditService(ledger, testRates(), nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i, amount := range []float64{1, 2, 4} {
		require.NoError(t, ledger.AppendCredit(context.Background(), core.CreditEntry{
			RunID:     "r1",
			Category:  core.CreditSearchQuery,
			Amount:    amount,
			CreatedAt: now.AddDate(0, 0, -i),
		}))
	}

	summary, err := s.Summary(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, summary.Total, 1e-9)
	require.Len(t, summary.Trend, 7)
	assert.Equal(t, "2026-03-10", summary.Trend[6].Day)
	assert.InDelta(t, 1.0, summary.Trend[6].Amount, 1e-9)
	assert.InDelta(t, 2.0, summary.Trend[5].Amount, 1e-9)

	// Category totals always reconcile with the grand total.
	var sum float64
	for _, v := range summary.ByCategory {
		sum += v
	}
	assert.InDelta(t, summary.Total, sum, 1e-9)
}
