package ledger

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func newTestLedger(t *testing.T) (*Ledger, *MockStore, *fakeClock) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewMockStore()
	clock := &fakeClock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	return NewLedger(s, log, WithClock(clock.Now)), s, clock
}

func mustClient(t *testing.T, l *Ledger, name string) *models.Client {
	t.Helper()
	c, err := l.CreateClient(name, "555-0100")
	require.NoError(t, err)
	return c
}

func mustLoan(t *testing.T, l *Ledger, clientID uuid.UUID, principal, installment string, count int, due time.Time) *models.Loan {
	t.Helper()
	loan, err := l.CreateLoan(LoanRequest{
		ClientID:          clientID,
		Principal:         d(principal),
		InstallmentAmount: d(installment),
		InstallmentCount:  count,
		StartDate:         day(2024, 1, 1),
		FirstDueDate:      due,
	})
	require.NoError(t, err)
	return loan
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "expected %s, got %s", want, got)
}

func TestCreateLoan(t *testing.T) {
	l, s, _ := newTestLedger(t)
	_, err := l.ManualAdjustment(d("5000.00"))
	require.NoError(t, err)
	client := mustClient(t, l, "Ana")

	loan := mustLoan(t, l, client.ID, "1000.00", "500", 3, day(2024, 2, 1))

	assertMoney(t, "1500", loan.TotalBilled)
	assert.Equal(t, 0, loan.InstallmentsPaid)
	assert.Equal(t, models.LoanStatusActive, loan.Status)
	assert.True(t, loan.Principal.Valid)

	balance, err := l.CurrentBalance()
	require.NoError(t, err)
	assertMoney(t, "4000.00", balance)

	last := s.history[len(s.history)-1]
	assertMoney(t, "-1000.00", last.Amount)
	assert.Equal(t, "Ana", last.ClientLabel)
	assert.Equal(t, disbursedDetail, last.Detail)
}

func TestCreateLoan_InvalidInput(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")

	valid := LoanRequest{
		ClientID:          client.ID,
		Principal:         d("100"),
		InstallmentAmount: d("60"),
		InstallmentCount:  2,
		StartDate:         day(2024, 1, 1),
		FirstDueDate:      day(2024, 2, 1),
	}

	cases := map[string]func(r *LoanRequest){
		"zero count":           func(r *LoanRequest) { r.InstallmentCount = 0 },
		"negative count":       func(r *LoanRequest) { r.InstallmentCount = -1 },
		"negative principal":   func(r *LoanRequest) { r.Principal = d("-1") },
		"negative installment": func(r *LoanRequest) { r.InstallmentAmount = d("-0.01") },
		"due before start":     func(r *LoanRequest) { r.FirstDueDate = day(2023, 12, 31) },
		"missing start":        func(r *LoanRequest) { r.StartDate = time.Time{} },
		"sub-cent installment": func(r *LoanRequest) { r.InstallmentAmount = d("100.005") },
		"sub-cent principal":   func(r *LoanRequest) { r.Principal = d("99.999") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := l.CreateLoan(req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	req := valid
	req.ClientID = uuid.New()
	_, err := l.CreateLoan(req)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, s.loans)
	assert.True(t, s.balance.IsZero())
}

func TestRecordPayment_CreditsLenderNetShare(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "1000", "1500", 1, day(2024, 2, 1))

	before, err := l.CurrentBalance()
	require.NoError(t, err)

	result, err := l.RecordPayment(loan.ID)
	require.NoError(t, err)

	assertMoney(t, "1250", result.LenderNetShare)
	assertMoney(t, "250", result.PartnerShare)
	assert.True(t, result.Settled)
	assertMoney(t, before.Add(d("1250")).String(), result.Balance)

	stored := s.loans[loan.ID]
	assert.Equal(t, 1, stored.InstallmentsPaid)
	assert.Equal(t, models.LoanStatusSettled, stored.Status)
	assert.True(t, stored.NextDueDate.Equal(day(2024, 2, 1)), "due date must freeze on settlement")

	last := s.history[len(s.history)-1]
	assert.Equal(t, "Installment 1/1 (Partner received 250.00)", last.Detail)
	assertMoney(t, "1250", last.Amount)
}

func TestRecordPayment_RollsDueDateByCalendarMonth(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	leap := mustLoan(t, l, client.ID, "300", "100", 4, day(2024, 1, 31))

	_, err := l.RecordPayment(leap.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", s.loans[leap.ID].NextDueDate.Format("2006-01-02"))
	assert.Equal(t, models.LoanStatusActive, s.loans[leap.ID].Status)

	_, err = l.RecordPayment(leap.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-29", s.loans[leap.ID].NextDueDate.Format("2006-01-02"))

	plain, err := l.CreateLoan(LoanRequest{
		ClientID:          client.ID,
		Principal:         d("300"),
		InstallmentAmount: d("100"),
		InstallmentCount:  4,
		StartDate:         day(2023, 1, 1),
		FirstDueDate:      day(2023, 1, 31),
	})
	require.NoError(t, err)
	_, err = l.RecordPayment(plain.ID)
	require.NoError(t, err)
	assert.Equal(t, "2023-02-28", s.loans[plain.ID].NextDueDate.Format("2006-01-02"))
}

func TestRecordPayment_SettledLoanIsRejected(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "200", "150", 2, day(2024, 2, 15))

	for i := 1; i <= 2; i++ {
		result, err := l.RecordPayment(loan.ID)
		require.NoError(t, err)
		assert.Equal(t, i, result.Loan.InstallmentsPaid)
		assert.Equal(t, i == 2, result.Settled)
	}

	balance := s.balance
	entries := len(s.history)
	settled := s.loans[loan.ID]

	for range 3 {
		_, err := l.RecordPayment(loan.ID)
		assert.ErrorIs(t, err, ErrAlreadySettled)
	}

	assert.True(t, s.balance.Equal(balance), "no duplicate credit")
	assert.Len(t, s.history, entries)
	assert.Equal(t, settled, s.loans[loan.ID])
	assert.Equal(t, 2, s.loans[loan.ID].InstallmentsPaid)
	assert.True(t, s.loans[loan.ID].NextDueDate.Equal(day(2024, 3, 15)))
}

func TestRecordPayment_NotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.RecordPayment(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrPersistence)
}

func TestRecordPayment_LegacyLoanWithoutPrincipal(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "100", "60", 2, day(2024, 2, 1))

	legacy := s.loans[loan.ID]
	legacy.Principal = decimal.NullDecimal{}
	s.loans[loan.ID] = legacy

	result, err := l.RecordPayment(loan.ID)
	require.NoError(t, err)
	assertMoney(t, "60", result.LenderNetShare)
	assert.True(t, result.PartnerShare.IsZero())
}

func TestRecordPayment_PersistenceFailureRollsBack(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "100", "60", 2, day(2024, 2, 1))

	balance := s.balance
	entries := len(s.history)
	s.failOn["AppendHistory"] = errors.New("disk full")

	_, err := l.RecordPayment(loan.ID)
	assert.ErrorIs(t, err, ErrPersistence)

	assert.True(t, s.balance.Equal(balance))
	assert.Len(t, s.history, entries)
	assert.Equal(t, 0, s.loans[loan.ID].InstallmentsPaid)
	assert.Equal(t, models.LoanStatusActive, s.loans[loan.ID].Status)
}

func TestInstallmentsPaidNeverExceedsCount(t *testing.T) {
	l, s, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "1000", "110", 10, day(2024, 2, 1))

	prev := 0
	for range 15 {
		_, err := l.RecordPayment(loan.ID)
		stored := s.loans[loan.ID]
		assert.GreaterOrEqual(t, stored.InstallmentsPaid, prev)
		assert.LessOrEqual(t, stored.InstallmentsPaid, stored.InstallmentCount)
		assert.Equal(t, stored.InstallmentsPaid == stored.InstallmentCount, stored.Status == models.LoanStatusSettled)
		if err != nil {
			assert.ErrorIs(t, err, ErrAlreadySettled)
		}
		prev = stored.InstallmentsPaid
	}
	assert.Equal(t, 10, prev)
}

func TestTotalWorth(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.ManualAdjustment(d("10000"))
	require.NoError(t, err)
	ana := mustClient(t, l, "Ana")
	bruno := mustClient(t, l, "Bruno")

	// Profit 500, partner 250, lender net 1250 over 3 installments: 416.66 each.
	a := mustLoan(t, l, ana.ID, "1000", "500", 3, day(2024, 2, 1))
	// Profit 400, partner 200, lender net 2200 over 4 installments: 550 each.
	b := mustLoan(t, l, bruno.ID, "2000", "600", 4, day(2024, 2, 5))

	balance, err := l.CurrentBalance()
	require.NoError(t, err)
	assertMoney(t, "7000", balance)

	worth, err := l.TotalWorth()
	require.NoError(t, err)
	assertMoney(t, "10449.98", worth) // 7000 + 3*416.66 + 4*550

	_, err = l.RecordPayment(a.ID)
	require.NoError(t, err)
	_, err = l.RecordPayment(b.ID)
	require.NoError(t, err)

	balance, err = l.CurrentBalance()
	require.NoError(t, err)
	assertMoney(t, "7966.66", balance)

	worth, err = l.TotalWorth()
	require.NoError(t, err)
	assertMoney(t, balance.Add(d("833.32")).Add(d("1650")).String(), worth)
	assertMoney(t, "10449.98", worth)
}

func TestTotalWorthIsStableAcrossPayments(t *testing.T) {
	l, _, _ := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	loan := mustLoan(t, l, client.ID, "700", "333.33", 3, day(2024, 2, 1))

	start, err := l.TotalWorth()
	require.NoError(t, err)
	for range 3 {
		_, err := l.RecordPayment(loan.ID)
		require.NoError(t, err)
		worth, err := l.TotalWorth()
		require.NoError(t, err)
		assertMoney(t, start.String(), worth)
	}
}

func TestDashboardDueStates(t *testing.T) {
	l, _, clock := newTestLedger(t)
	client := mustClient(t, l, "Ana")
	overdue := mustLoan(t, l, client.ID, "100", "60", 2, day(2024, 1, 5))
	today := mustLoan(t, l, client.ID, "100", "60", 2, day(2024, 1, 10))
	upcoming := mustLoan(t, l, client.ID, "100", "60", 2, day(2024, 2, 10))

	dash, err := l.Dashboard(clock.Now())
	require.NoError(t, err)
	require.Len(t, dash.Loans, 3)
	assert.Equal(t, overdue.ID, dash.Loans[0].LoanID)
	assert.Equal(t, models.DueStateOverdue, dash.Loans[0].DueState)
	assert.Equal(t, today.ID, dash.Loans[1].LoanID)
	assert.Equal(t, models.DueStateToday, dash.Loans[1].DueState)
	assert.Equal(t, upcoming.ID, dash.Loans[2].LoanID)
	assert.Equal(t, models.DueStateUpcoming, dash.Loans[2].DueState)
	assertMoney(t, dash.Balance.Add(dash.RemainingValue).String(), dash.TotalWorth)

	late, err := l.OverdueLoans(clock.Now())
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, overdue.ID, late[0].LoanID)
}

func TestDeleteClient(t *testing.T) {
	l, s, _ := newTestLedger(t)
	_, err := l.ManualAdjustment(d("5000"))
	require.NoError(t, err)
	ana := mustClient(t, l, "Ana")
	bruno := mustClient(t, l, "Bruno")
	mustLoan(t, l, ana.ID, "1000", "600", 2, day(2024, 2, 1))
	mustLoan(t, l, ana.ID, "500", "300", 2, day(2024, 2, 1))
	kept := mustLoan(t, l, bruno.ID, "100", "60", 2, day(2024, 2, 1))

	balance := s.balance
	entries := len(s.history)

	require.NoError(t, l.DeleteClient(ana.ID))

	assert.True(t, s.balance.Equal(balance), "deleting a client must not refund principal")
	require.Len(t, s.history, entries+1)
	last := s.history[len(s.history)-1]
	assert.Equal(t, "Ana", last.ClientLabel)
	assert.Equal(t, deletedDetail, last.Detail)
	assert.True(t, last.Amount.IsZero())

	require.Len(t, s.loans, 1)
	_, ok := s.loans[kept.ID]
	assert.True(t, ok)

	_, err = l.GetClient(ana.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.DeleteClient(ana.ID), ErrNotFound)
}

func TestClients(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.CreateClient("   ", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	bruno := mustClient(t, l, "Bruno")
	ana := mustClient(t, l, " Ana ")
	assert.Equal(t, "Ana", ana.Name)
	mustLoan(t, l, bruno.ID, "100", "60", 2, day(2024, 2, 1))

	updated, err := l.UpdateClient(ana.ID, "Ana Maria", "555-0199")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)

	_, err = l.UpdateClient(uuid.New(), "Nobody", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.UpdateClient(ana.ID, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	clients, err := l.ListClients()
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Ana Maria", clients[0].Name)
	assert.Equal(t, 0, clients[0].ActiveLoans)
	assert.Equal(t, "Bruno", clients[1].Name)
	assert.Equal(t, 1, clients[1].ActiveLoans)
}

func TestManualAdjustment(t *testing.T) {
	l, s, _ := newTestLedger(t)

	balance, err := l.ManualAdjustment(d("250.50"))
	require.NoError(t, err)
	assertMoney(t, "250.50", balance)

	balance, err = l.ManualAdjustment(d("-300"))
	require.NoError(t, err)
	assertMoney(t, "-49.50", balance)

	_, err = l.ManualAdjustment(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.Len(t, s.history, 2)
	assert.Equal(t, manualLabel, s.history[0].ClientLabel)
	assert.Equal(t, manualDetail, s.history[0].Detail)

	s.failOn["AddToBalance"] = errors.New("locked")
	_, err = l.ManualAdjustment(d("1"))
	assert.ErrorIs(t, err, ErrPersistence)
	assertMoney(t, "-49.50", s.balance)
}

func TestRecentHistory(t *testing.T) {
	l, _, _ := newTestLedger(t)
	for i := 1; i <= 60; i++ {
		_, err := l.ManualAdjustment(decimal.NewFromInt(int64(i)))
		require.NoError(t, err)
	}

	entries, err := l.RecentHistory(0)
	require.NoError(t, err)
	require.Len(t, entries, DefaultHistoryLimit)
	assertMoney(t, "60", entries[0].Amount)

	entries, err = l.RecentHistory(5)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestMonthlyProfitSeries(t *testing.T) {
	l, _, clock := newTestLedger(t)
	client := mustClient(t, l, "Ana")

	months := []time.Time{
		time.Date(2023, 11, 3, 12, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 20, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC),
	}
	for _, m := range months {
		clock.t = m
		_, err := l.ManualAdjustment(d("100"))
		require.NoError(t, err)
	}
	// A disbursement in February must not reduce the February total.
	mustLoan(t, l, client.ID, "1000", "600", 2, day(2024, 3, 1))

	series, err := l.MonthlyProfitSeries(3)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "12/2023", series[0].Month)
	assert.Equal(t, "01/2024", series[1].Month)
	assert.Equal(t, "02/2024", series[2].Month)
	assertMoney(t, "100", series[0].Amount)
	assertMoney(t, "200", series[1].Amount)
	assertMoney(t, "100", series[2].Amount)

	all, err := l.MonthlyProfitSeries(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "11/2023", all[0].Month)
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		from time.Time
		n    int
		want string
	}{
		{day(2024, 1, 31), 1, "2024-02-29"},
		{day(2023, 1, 31), 1, "2023-02-28"},
		{day(2024, 3, 31), 1, "2024-04-30"},
		{day(2024, 12, 15), 1, "2025-01-15"},
		{day(2024, 1, 31), 13, "2025-02-28"},
		{day(2024, 2, 29), 12, "2025-02-28"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AddMonths(tc.from, tc.n).Format("2006-01-02"), "%s + %d", tc.from.Format("2006-01-02"), tc.n)
	}
}
