package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/profit"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const disbursedDetail = "Loan Disbursed"

// LoanRequest holds what the lender enters when lending money.
type LoanRequest struct {
	ClientID          uuid.UUID
	Principal         decimal.Decimal // cash taken out of the balance
	InstallmentAmount decimal.Decimal
	InstallmentCount  int
	StartDate         time.Time
	FirstDueDate      time.Time
}

func (r LoanRequest) validate() error {
	switch {
	case r.InstallmentCount <= 0:
		return invalid("installment count must be positive, got %d", r.InstallmentCount)
	case r.Principal.IsNegative():
		return invalid("principal must not be negative")
	case r.InstallmentAmount.IsNegative():
		return invalid("installment amount must not be negative")
	case !isCents(r.Principal) || !isCents(r.InstallmentAmount):
		return invalid("amounts must be whole cents")
	case r.StartDate.IsZero() || r.FirstDueDate.IsZero():
		return invalid("start date and first due date are required")
	case dateOnly(r.FirstDueDate).Before(dateOnly(r.StartDate)):
		return invalid("first due date is before the start date")
	}
	return nil
}

// isCents reports whether x is a whole number of cents.
func isCents(x decimal.Decimal) bool {
	return x.Equal(x.Round(2))
}

// AddMonths moves t forward by n calendar months. When the target month is
// shorter the day is clamped to its last day, so Jan 31 + 1 is Feb 29 in a
// leap year.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// CreateLoan records a new loan for a client and debits the disbursed
// principal from the cash balance.
func (l *Ledger) CreateLoan(req LoanRequest) (*models.Loan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	loan := &models.Loan{
		ID:                uuid.New(),
		ClientID:          req.ClientID,
		Principal:         decimal.NewNullDecimal(req.Principal),
		TotalBilled:       req.InstallmentAmount.Mul(decimal.NewFromInt(int64(req.InstallmentCount))),
		InstallmentAmount: req.InstallmentAmount,
		InstallmentCount:  req.InstallmentCount,
		InstallmentsPaid:  0,
		StartDate:         dateOnly(req.StartDate),
		NextDueDate:       dateOnly(req.FirstDueDate),
		Status:            models.LoanStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var balance decimal.Decimal
	err := l.storage.InTx(func(q store.Queries) error {
		client, err := q.GetClient(req.ClientID)
		if err != nil {
			return err
		}
		if err := q.CreateLoan(loan); err != nil {
			return err
		}
		balance, err = l.applyDelta(q, req.Principal.Neg(), client.Name, disbursedDetail)
		return err
	})
	if err != nil {
		return nil, l.fail("create loan", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"client_id": loan.ClientID,
		"principal": req.Principal.StringFixed(2),
		"billed":    loan.TotalBilled.StringFixed(2),
		"balance":   balance.StringFixed(2),
	}).Info("Loan disbursed")
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, l.fail("get loan", err)
	}
	return loan, nil
}

// RecordPayment collects the next installment of an active loan. The lender's
// net share is credited to the cash balance; the partner's share is only noted
// in the history detail.
func (l *Ledger) RecordPayment(loanID uuid.UUID) (*models.PaymentResult, error) {
	var result *models.PaymentResult
	err := l.storage.InTx(func(q store.Queries) error {
		loan, err := q.GetLoan(loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("loan %s: %w", loan.ID, ErrAlreadySettled)
		}
		client, err := q.GetClient(loan.ClientID)
		if err != nil {
			return err
		}

		principal := profit.EffectivePrincipal(loan.TotalBilled, loan.Principal)
		lenderNet, partnerShare, err := profit.NetPerPaymentEvent(loan.InstallmentAmount, loan.TotalBilled, principal, loan.InstallmentCount)
		if err != nil {
			return fmt.Errorf("loan %s: %w: %w", loan.ID, ErrInvalidInput, err)
		}

		advance(loan, l.now().UTC())
		if err := q.UpdateLoan(loan); err != nil {
			return err
		}

		detail := fmt.Sprintf("Installment %d/%d (Partner received %s)",
			loan.InstallmentsPaid, loan.InstallmentCount, partnerShare.StringFixed(2))
		balance, err := l.applyDelta(q, lenderNet, client.Name, detail)
		if err != nil {
			return err
		}

		result = &models.PaymentResult{
			Loan:           loan,
			LenderNetShare: lenderNet,
			PartnerShare:   partnerShare,
			Settled:        loan.Status == models.LoanStatusSettled,
			Balance:        balance,
		}
		return nil
	})
	if err != nil {
		return nil, l.fail("record payment", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":    result.Loan.ID,
		"paid":       result.Loan.InstallmentsPaid,
		"count":      result.Loan.InstallmentCount,
		"lender_net": result.LenderNetShare.StringFixed(2),
		"partner":    result.PartnerShare.StringFixed(2),
		"settled":    result.Settled,
	}).Info("Installment collected")
	return result, nil
}

// advance counts one more paid installment. The last one settles the loan
// and leaves the due date where it was; otherwise the due date rolls one
// calendar month.
func advance(loan *models.Loan, now time.Time) {
	loan.InstallmentsPaid++
	loan.UpdatedAt = now
	if loan.InstallmentsPaid >= loan.InstallmentCount {
		loan.InstallmentsPaid = loan.InstallmentCount
		loan.Status = models.LoanStatusSettled
		return
	}
	loan.NextDueDate = AddMonths(loan.NextDueDate, 1)
}
