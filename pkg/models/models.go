package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a borrower.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientSummary is a client row of the client listing.
type ClientSummary struct {
	Client
	ActiveLoans int `json:"active_loans"`
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusSettled LoanStatus = "settled"
)

// Loan is money lent to a client and repaid in equal monthly installments.
type Loan struct {
	ID                uuid.UUID           `json:"id"`
	ClientID          uuid.UUID           `json:"client_id"`
	Principal         decimal.NullDecimal `json:"principal"`    // Cash actually disbursed; invalid for legacy rows
	TotalBilled       decimal.Decimal     `json:"total_billed"` // InstallmentAmount * InstallmentCount, fixed at creation
	InstallmentAmount decimal.Decimal     `json:"installment_amount"`
	InstallmentCount  int                 `json:"installment_count"`
	InstallmentsPaid  int                 `json:"installments_paid"`
	StartDate         time.Time           `json:"start_date"`
	NextDueDate       time.Time           `json:"next_due_date"`
	Status            LoanStatus          `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// RemainingInstallments is the number of installments still to be collected.
func (l *Loan) RemainingInstallments() int {
	if l.Status != LoanStatusActive {
		return 0
	}
	return l.InstallmentCount - l.InstallmentsPaid
}

// ActiveLoan is a loan joined with the name of its client.
type ActiveLoan struct {
	Loan
	ClientName string `json:"client_name"`
}

// HistoryEntry records one cash movement. ClientLabel is denormalised so the
// entry survives deletion of the client.
type HistoryEntry struct {
	ID          int64           `json:"id"`
	ClientLabel string          `json:"client_label"`
	Amount      decimal.Decimal `json:"amount"` // negative: cash left, positive: cash entered
	Detail      string          `json:"detail"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DueState places a loan's next due date relative to today.
type DueState string

const (
	DueStateUpcoming DueState = "upcoming"
	DueStateToday    DueState = "due_today"
	DueStateOverdue  DueState = "overdue"
)

// ActiveLoanView is a row of the active loan listing.
type ActiveLoanView struct {
	LoanID                  uuid.UUID       `json:"loan_id"`
	ClientID                uuid.UUID       `json:"client_id"`
	ClientName              string          `json:"client_name"`
	TotalBilled             decimal.Decimal `json:"total_billed"`
	InstallmentCount        int             `json:"installment_count"`
	InstallmentAmount       decimal.Decimal `json:"installment_amount"`
	InstallmentsPaid        int             `json:"installments_paid"`
	NextDueDate             time.Time       `json:"next_due_date"`
	DueState                DueState        `json:"due_state"`
	LenderNetPerInstallment decimal.Decimal `json:"lender_net_per_installment"`
	RemainingValue          decimal.Decimal `json:"remaining_value"`
}

// Dashboard is the main listing: active loans plus the cash position.
type Dashboard struct {
	Loans          []ActiveLoanView `json:"loans"`
	Balance        decimal.Decimal  `json:"balance"`
	RemainingValue decimal.Decimal  `json:"remaining_value"`
	TotalWorth     decimal.Decimal  `json:"total_worth"`
}

// PaymentResult describes the effect of one collected installment.
type PaymentResult struct {
	Loan           *Loan           `json:"loan"`
	LenderNetShare decimal.Decimal `json:"lender_net_share"`
	PartnerShare   decimal.Decimal `json:"partner_share"`
	Settled        bool            `json:"settled"`
	Balance        decimal.Decimal `json:"balance"`
}

// MonthlyTotal is one point of the monthly inflow series. Month is MM/YYYY.
type MonthlyTotal struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}
