package ledger

import (
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	manualLabel  = "CASH"
	manualDetail = "Manual Adjustment"
)

// applyDelta is the only place the cash balance changes. It must run inside
// the caller's transaction so the balance, the history entry and whatever
// loan change caused them commit together.
func (l *Ledger) applyDelta(q store.Queries, amount decimal.Decimal, label, detail string) (decimal.Decimal, error) {
	balance, err := q.AddToBalance(amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := l.recordHistory(q, amount, label, detail); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (l *Ledger) recordHistory(q store.Queries, amount decimal.Decimal, label, detail string) error {
	return q.AppendHistory(&models.HistoryEntry{
		ClientLabel: label,
		Amount:      amount,
		Detail:      detail,
		CreatedAt:   l.now().UTC(),
	})
}

// ManualAdjustment adds amount to the cash balance outside of any loan and
// returns the new balance. Negative amounts withdraw cash.
func (l *Ledger) ManualAdjustment(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, invalid("adjustment amount must not be zero")
	}

	var balance decimal.Decimal
	err := l.storage.InTx(func(q store.Queries) error {
		var err error
		balance, err = l.applyDelta(q, amount, manualLabel, manualDetail)
		return err
	})
	if err != nil {
		return decimal.Zero, l.fail("manual adjustment", err)
	}

	l.log.WithFields(logrus.Fields{
		"amount":  amount.StringFixed(2),
		"balance": balance.StringFixed(2),
	}).Info("Cash adjusted")
	return balance, nil
}

// CurrentBalance returns the cash on hand. It may be negative.
func (l *Ledger) CurrentBalance() (decimal.Decimal, error) {
	balance, err := l.storage.GetBalance()
	if err != nil {
		return decimal.Zero, l.fail("current balance", err)
	}
	return balance, nil
}
