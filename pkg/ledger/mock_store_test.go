package ledger

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
)

// MockStore is an in-memory implementation of the Storage interface for
// testing. Rows are copied in and out, and InTx restores the previous state
// when the callback fails.
type MockStore struct {
	clients map[uuid.UUID]models.Client
	loans   map[uuid.UUID]models.Loan
	balance decimal.Decimal
	history []models.HistoryEntry
	nextID  int64

	// failOn makes the named method return the error.
	failOn map[string]error
}

func NewMockStore() *MockStore {
	return &MockStore{
		clients: make(map[uuid.UUID]models.Client),
		loans:   make(map[uuid.UUID]models.Loan),
		balance: decimal.Zero,
		failOn:  make(map[string]error),
	}
}

func (m *MockStore) fail(method string) error {
	return m.failOn[method]
}

func (m *MockStore) InTx(fn func(q store.Queries) error) error {
	clients := maps.Clone(m.clients)
	loans := maps.Clone(m.loans)
	balance := m.balance
	history := slices.Clone(m.history)
	nextID := m.nextID

	if err := fn(m); err != nil {
		m.clients, m.loans, m.balance, m.history, m.nextID = clients, loans, balance, history, nextID
		return err
	}
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) CreateClient(client *models.Client) error {
	if err := m.fail("CreateClient"); err != nil {
		return err
	}
	m.clients[client.ID] = *client
	return nil
}

func (m *MockStore) GetClient(id uuid.UUID) (*models.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (m *MockStore) UpdateClient(client *models.Client) error {
	if _, ok := m.clients[client.ID]; !ok {
		return fmt.Errorf("client %s: %w", client.ID, store.ErrNotFound)
	}
	m.clients[client.ID] = *client
	return nil
}

func (m *MockStore) DeleteClient(id uuid.UUID) error {
	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("client %s: %w", id, store.ErrNotFound)
	}
	delete(m.clients, id)
	return nil
}

func (m *MockStore) ListClientSummaries() ([]*models.ClientSummary, error) {
	var out []*models.ClientSummary
	for _, c := range m.clients {
		s := &models.ClientSummary{Client: c}
		for _, l := range m.loans {
			if l.ClientID == c.ID && l.Status == models.LoanStatusActive {
				s.ActiveLoans++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out, nil
}

func (m *MockStore) CreateLoan(loan *models.Loan) error {
	if err := m.fail("CreateLoan"); err != nil {
		return err
	}
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MockStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, store.ErrNotFound)
	}
	return &l, nil
}

func (m *MockStore) UpdateLoan(loan *models.Loan) error {
	if err := m.fail("UpdateLoan"); err != nil {
		return err
	}
	if _, ok := m.loans[loan.ID]; !ok {
		return fmt.Errorf("loan %s: %w", loan.ID, store.ErrNotFound)
	}
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MockStore) DeleteLoansForClient(clientID uuid.UUID) (int64, error) {
	var n int64
	for id, l := range m.loans {
		if l.ClientID == clientID {
			delete(m.loans, id)
			n++
		}
	}
	return n, nil
}

func (m *MockStore) ListActiveLoans() ([]*models.ActiveLoan, error) {
	if err := m.fail("ListActiveLoans"); err != nil {
		return nil, err
	}
	var out []*models.ActiveLoan
	for _, l := range m.loans {
		if l.Status != models.LoanStatusActive {
			continue
		}
		out = append(out, &models.ActiveLoan{Loan: l, ClientName: m.clients[l.ClientID].Name})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(out[j].NextDueDate) {
			return out[i].NextDueDate.Before(out[j].NextDueDate)
		}
		return out[i].ClientName < out[j].ClientName
	})
	return out, nil
}

func (m *MockStore) GetBalance() (decimal.Decimal, error) {
	if err := m.fail("GetBalance"); err != nil {
		return decimal.Zero, err
	}
	return m.balance, nil
}

func (m *MockStore) AddToBalance(delta decimal.Decimal) (decimal.Decimal, error) {
	if err := m.fail("AddToBalance"); err != nil {
		return decimal.Zero, err
	}
	m.balance = m.balance.Add(delta)
	return m.balance, nil
}

func (m *MockStore) AppendHistory(entry *models.HistoryEntry) error {
	if err := m.fail("AppendHistory"); err != nil {
		return err
	}
	m.nextID++
	entry.ID = m.nextID
	m.history = append(m.history, *entry)
	return nil
}

func (m *MockStore) RecentHistory(limit int) ([]*models.HistoryEntry, error) {
	var out []*models.HistoryEntry
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.history[i]
		out = append(out, &e)
	}
	return out, nil
}

func (m *MockStore) ListHistory() ([]*models.HistoryEntry, error) {
	out := make([]*models.HistoryEntry, 0, len(m.history))
	for i := range m.history {
		e := m.history[i]
		out = append(out, &e)
	}
	return out, nil
}
