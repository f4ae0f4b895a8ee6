package ledger

import (
	"fmt"
	"time"

	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/profit"
	"github.com/shopspring/decimal"
)

// loanView projects one active loan: its due state relative to today and the
// lender's net claim on the installments still unpaid.
func loanView(loan *models.ActiveLoan, today time.Time) (models.ActiveLoanView, error) {
	principal := profit.EffectivePrincipal(loan.TotalBilled, loan.Principal)
	split := profit.SplitLoanProfit(loan.TotalBilled, principal)
	perInstallment, err := profit.NetPerInstallment(split.LenderNetTotal, loan.InstallmentCount)
	if err != nil {
		return models.ActiveLoanView{}, fmt.Errorf("loan %s: %w: %w", loan.ID, ErrInvalidInput, err)
	}

	due := dateOnly(loan.NextDueDate)
	state := models.DueStateUpcoming
	switch {
	case due.Before(today):
		state = models.DueStateOverdue
	case due.Equal(today):
		state = models.DueStateToday
	}

	return models.ActiveLoanView{
		LoanID:                  loan.ID,
		ClientID:                loan.ClientID,
		ClientName:              loan.ClientName,
		TotalBilled:             loan.TotalBilled,
		InstallmentCount:        loan.InstallmentCount,
		InstallmentAmount:       loan.InstallmentAmount,
		InstallmentsPaid:        loan.InstallmentsPaid,
		NextDueDate:             due,
		DueState:                state,
		LenderNetPerInstallment: perInstallment,
		RemainingValue:          profit.RemainingValue(perInstallment, loan.RemainingInstallments()),
	}, nil
}

// ListActiveLoansSortedByDueDate returns the active loans, earliest due date
// first, with due states relative to asOf.
func (l *Ledger) ListActiveLoansSortedByDueDate(asOf time.Time) ([]models.ActiveLoanView, error) {
	loans, err := l.storage.ListActiveLoans()
	if err != nil {
		return nil, l.fail("list active loans", err)
	}

	today := dateOnly(asOf)
	views := make([]models.ActiveLoanView, 0, len(loans))
	for _, loan := range loans {
		v, err := loanView(loan, today)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func sumRemaining(views []models.ActiveLoanView) decimal.Decimal {
	total := decimal.Zero
	for _, v := range views {
		total = total.Add(v.RemainingValue)
	}
	return total
}

// TotalWorth is the cash balance plus the lender's net value of every unpaid
// installment of the active loans. The partner's share is left out.
func (l *Ledger) TotalWorth() (decimal.Decimal, error) {
	d, err := l.Dashboard(l.now())
	if err != nil {
		return decimal.Zero, err
	}
	return d.TotalWorth, nil
}

// Dashboard builds the main listing. It is recomputed on every call.
func (l *Ledger) Dashboard(asOf time.Time) (*models.Dashboard, error) {
	views, err := l.ListActiveLoansSortedByDueDate(asOf)
	if err != nil {
		return nil, err
	}
	balance, err := l.CurrentBalance()
	if err != nil {
		return nil, err
	}

	remaining := sumRemaining(views)
	return &models.Dashboard{
		Loans:          views,
		Balance:        balance,
		RemainingValue: remaining,
		TotalWorth:     balance.Add(remaining),
	}, nil
}

// OverdueLoans returns the active loans whose due date has passed.
func (l *Ledger) OverdueLoans(asOf time.Time) ([]models.ActiveLoanView, error) {
	views, err := l.ListActiveLoansSortedByDueDate(asOf)
	if err != nil {
		return nil, err
	}
	var overdue []models.ActiveLoanView
	for _, v := range views {
		if v.DueState == models.DueStateOverdue {
			overdue = append(overdue, v)
		}
	}
	return overdue, nil
}
