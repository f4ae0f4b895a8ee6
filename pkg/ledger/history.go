package ledger

import (
	"cmp"
	"slices"
	"time"

	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// History is a display log. The balance is never rebuilt from it, and after
// a client deletion or an external edit the two may disagree.

// RecentHistory returns the latest entries, newest first. A non-positive
// limit means the configured default.
func (l *Ledger) RecentHistory(limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = l.historyLimit
	}
	entries, err := l.storage.RecentHistory(limit)
	if err != nil {
		return nil, l.fail("recent history", err)
	}
	return entries, nil
}

type monthKey struct {
	year  int
	month time.Month
}

// MonthlyProfitSeries sums the cash inflows (positive history amounts) per
// calendar month in UTC and returns the most recent limitMonths months that
// had any, oldest first. Disbursements and deletions are not counted.
func (l *Ledger) MonthlyProfitSeries(limitMonths int) ([]models.MonthlyTotal, error) {
	if limitMonths <= 0 {
		limitMonths = l.chartMonths
	}
	entries, err := l.storage.ListHistory()
	if err != nil {
		return nil, l.fail("monthly profit series", err)
	}

	sums := make(map[monthKey]decimal.Decimal)
	var keys []monthKey
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			continue
		}
		t := e.CreatedAt.UTC()
		k := monthKey{t.Year(), t.Month()}
		sum, seen := sums[k]
		if !seen {
			keys = append(keys, k)
		}
		sums[k] = sum.Add(e.Amount)
	}

	slices.SortFunc(keys, func(a, b monthKey) int {
		if c := cmp.Compare(a.year, b.year); c != 0 {
			return c
		}
		return cmp.Compare(a.month, b.month)
	})
	if len(keys) > limitMonths {
		keys = keys[len(keys)-limitMonths:]
	}

	series := make([]models.MonthlyTotal, 0, len(keys))
	for _, k := range keys {
		series = append(series, models.MonthlyTotal{
			Month:  time.Date(k.year, k.month, 1, 0, 0, 0, 0, time.UTC).Format("01/2006"),
			Amount: sums[k],
		})
	}
	return series, nil
}
