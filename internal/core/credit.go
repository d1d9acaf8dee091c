package core

import (
	"fmt"
	"time"
)

// CreditCategory classifies what a credit entry paid for.
type CreditCategory string

const (
	CreditModelInference CreditCategory = "model-inference"
	CreditSearchQuery    CreditCategory = "search-query"
	CreditPostPublish    CreditCategory = "post-publish"
)

// ValidCreditCategory checks if a category string is valid.
func ValidCreditCategory(c CreditCategory) bool {
	switch c {
	case CreditModelInference, CreditSearchQuery, CreditPostPublish:
		return true
	default:
		return false
	}
}

// CreditEntry is one append-only usage record. Entries are never
// mutated after creation; summaries are computed on read.
type CreditEntry struct {
	ID        int64
	RunID     RunID
	Category  CreditCategory
	Amount    float64
	CreatedAt time.Time
}

// Validate checks entry invariants before append.
func (e *CreditEntry) Validate() error {
	if e.RunID == "" {
		return fmt.Errorf("credit entry requires a run id")
	}
	if !ValidCreditCategory(e.Category) {
		return fmt.Errorf("invalid credit category: %s", e.Category)
	}
	if e.Amount < 0 {
		return fmt.Errorf("credit amount cannot be negative: %f", e.Amount)
	}
	return nil
}

// DailyCredit is one day's consumption in the recent trend.
type DailyCredit struct {
	Day    string  `json:"day"` // YYYY-MM-DD (UTC)
	Amount float64 `json:"amount"`
}

// CreditSummary is the read model aggregated from the ledger. The sum
// of ByCategory always equals Total.
type CreditSummary struct {
	Total      float64                    `json:"total"`
	ByCategory map[CreditCategory]float64 `json:"byCategory"`
	Trend      []DailyCredit              `json:"trend"`
}

// SummarizeCredits folds ledger entries into a summary. Trend buckets
// cover the trailing trendDays days up to now, oldest first.
func SummarizeCredits(entries []CreditEntry, now time.Time, trendDays int) CreditSummary {
	s := CreditSummary{
		ByCategory: make(map[CreditCategory]float64),
	}

	byDay := make(map[string]float64)
	for _, e := range entries {
		s.Total += e.Amount
		s.ByCategory[e.Category] += e.Amount
		byDay[e.CreatedAt.UTC().Format("2006-01-02")] += e.Amount
	}

	if trendDays <= 0 {
		trendDays = 7
	}
	start := now.UTC().AddDate(0, 0, -(trendDays - 1))
	for i := 0; i < trendDays; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		s.Trend = append(s.Trend, DailyCredit{Day: day, Amount: byDay[day]})
	}
	return s
}
