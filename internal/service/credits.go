package service

import (
	"context"
	"time"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
)

// CreditService prices usage events and appends them to the ledger.
// Accounting is best-effort: a failed append is logged and never fails
// the run that produced it.
type CreditService struct {
	ledger core.CreditLedger
	rates  config.CreditsConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewCreditService creates a credit service.
func NewCreditService(ledger core.CreditLedger, rates config.CreditsConfig, logger *logging.Logger) *CreditService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CreditService{
		ledger: ledger,
		rates:  rates,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordModelUsage prices one model turn by total token volume.
func (s *CreditService) RecordModelUsage(ctx context.Context, runID core.RunID, tokensIn, tokensOut int) {
	amount := s.rates.PerThousandTokens * float64(tokensIn+tokensOut) / 1000
	s.append(ctx, runID, core.CreditModelInference, amount)
}

// RecordSearch prices one research query.
func (s *CreditService) RecordSearch(ctx context.Context, runID core.RunID) {
	s.append(ctx, runID, core.CreditSearchQuery, s.rates.PerSearch)
}

// RecordPost prices one publish.
func (s *CreditService) RecordPost(ctx context.Context, runID core.RunID) {
	s.append(ctx, runID, core.CreditPostPublish, s.rates.PerPost)
}

func (s *CreditService) append(ctx context.Context, runID core.RunID, cat core.CreditCategory, amount float64) {
	entry := core.CreditEntry{
		RunID:     runID,
		Category:  cat,
		Amount:    amount,
		CreatedAt: s.now(),
	}
	if err := entry.Validate(); err != nil {
		s.logger.Warn("dropping invalid credit entry", "category", cat, "error", err)
		return
	}
	if err := s.ledger.AppendCredit(ctx, entry); err != nil {
		s.logger.Warn("credit append failed", "run_id", runID, "category", cat, "error", err)
	}
}

// Summary aggregates ledger entries over the trailing trendDays days.
func (s *CreditService) Summary(ctx context.Context, trendDays int) (*core.CreditSummary, error) {
	if trendDays <= 0 {
		trendDays = 7
	}
	now := s.now()
	since := now.AddDate(0, 0, -(trendDays - 1)).Truncate(24 * time.Hour)
	entries, err := s.ledger.ListCredits(ctx, since)
	if err != nil {
		return nil, err
	}
	summary := core.SummarizeCredits(entries, now, trendDays)
	return &summary, nil
}

// RunTotal sums credits consumed by a single run.
func (s *CreditService) RunTotal(ctx context.Context, runID core.RunID) (float64, error) {
	entries, err := s.ledger.ListRunCredits(ctx, runID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, e := range entries {
		total += e.Amount
	}
	return total, nil
}
