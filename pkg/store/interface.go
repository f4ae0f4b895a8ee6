package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a client or loan row does not exist.
var ErrNotFound = errors.New("not found")

// Queries defines the database operations on clients, loans, the cash balance
// and the history log.
type Queries interface {
	CreateClient(client *models.Client) error
	GetClient(id uuid.UUID) (*models.Client, error)
	UpdateClient(client *models.Client) error
	DeleteClient(id uuid.UUID) error
	ListClientSummaries() ([]*models.ClientSummary, error)

	CreateLoan(loan *models.Loan) error
	// GetLoan locks the row for the rest of the transaction where the
	// database supports it.
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoansForClient(clientID uuid.UUID) (int64, error)
	ListActiveLoans() ([]*models.ActiveLoan, error)

	GetBalance() (decimal.Decimal, error)
	// AddToBalance applies a signed delta to the singleton balance and
	// returns the new balance.
	AddToBalance(delta decimal.Decimal) (decimal.Decimal, error)

	AppendHistory(entry *models.HistoryEntry) error
	RecentHistory(limit int) ([]*models.HistoryEntry, error)
	ListHistory() ([]*models.HistoryEntry, error)
}

// Storage is a Queries implementation that can also run a group of queries
// as one atomic unit.
type Storage interface {
	Queries

	// InTx runs fn inside a transaction. Everything fn does is committed
	// together, or rolled back if fn or the commit fails.
	InTx(fn func(q Queries) error) error

	Close() error
}
