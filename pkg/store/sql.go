package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	cashBalanceID = 1
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SQLStore manages the database connection and operations for SQLite and PostgreSQL.
type SQLStore struct {
	*queries
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLStore opens the database for driver ("sqlite3" or "postgres") and
// migrates the schema to the latest version.
func NewSQLStore(driver, dataSourceName string, log *logrus.Logger) (*SQLStore, error) {
	var d dialect
	switch driver {
	case DriverSQLite:
		d = dialectSQLite
		dataSourceName = sqliteDSN(dataSourceName)
	case DriverPostgres:
		d = dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if d == dialectSQLite {
		// One connection serialises writers and keeps the per-connection
		// pragmas in force.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLStore{
		queries: &queries{q: db, dialect: d},
		db:      db,
		log:     log,
	}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	log.WithField("driver", driver).Info("Database connection established and schema migrated.")
	return s, nil
}

// NewSQLiteStore opens a SQLite database file.
func NewSQLiteStore(path string, log *logrus.Logger) (*SQLStore, error) {
	return NewSQLStore(DriverSQLite, path, log)
}

// sqliteDSN enables foreign keys, WAL mode and a busy timeout unless the
// caller already set them.
func sqliteDSN(dsn string) string {
	params := []string{"_foreign_keys=on", "_journal_mode=WAL", "_busy_timeout=5000"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// InTx runs fn against a transaction and commits it if fn succeeds.
func (s *SQLStore) InTx(fn func(q Queries) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx, dialect: s.dialect, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(d dialect, query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queries struct {
	q       querier
	dialect dialect
	inTx    bool
}

func (s *queries) exec(query string, args ...any) (sql.Result, error) {
	return s.q.Exec(rebind(s.dialect, query), args...)
}

func (s *queries) query(query string, args ...any) (*sql.Rows, error) {
	return s.q.Query(rebind(s.dialect, query), args...)
}

func (s *queries) queryRow(query string, args ...any) *sql.Row {
	return s.q.QueryRow(rebind(s.dialect, query), args...)
}

// forUpdate returns the row locking suffix for reads inside a transaction.
// SQLite locks the whole database on write and needs none.
func (s *queries) forUpdate() string {
	if s.inTx && s.dialect == dialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateClient inserts a new client.
func (s *queries) CreateClient(client *models.Client) error {
	_, err := s.exec(`INSERT INTO clients (id, name, contact, created_at) VALUES (?, ?, ?, ?)`,
		client.ID.String(), client.Name, client.Contact, client.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *queries) GetClient(id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := s.queryRow(`SELECT id, name, contact, created_at FROM clients WHERE id = ?`, id.String()).
		Scan(&client.ID, &client.Name, &client.Contact, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// UpdateClient updates the name and contact of a client.
func (s *queries) UpdateClient(client *models.Client) error {
	result, err := s.exec(`UPDATE clients SET name = ?, contact = ? WHERE id = ?`,
		client.Name, client.Contact, client.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return fmt.Errorf("client %s: %w", client.ID, err)
	}
	return nil
}

// DeleteClient removes a client row. Loans cascade.
func (s *queries) DeleteClient(id uuid.UUID) error {
	result, err := s.exec(`DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return fmt.Errorf("client %s: %w", id, err)
	}
	return nil
}

// ListClientSummaries returns all clients ordered by name with their number of active loans.
func (s *queries) ListClientSummaries() ([]*models.ClientSummary, error) {
	rows, err := s.query(`SELECT c.id, c.name, c.contact, c.created_at,
			(SELECT COUNT(*) FROM loans l WHERE l.client_id = c.id AND l.status = ?)
		FROM clients c
		ORDER BY c.name, c.id`, string(models.LoanStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.ClientSummary
	for rows.Next() {
		var c models.ClientSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.CreatedAt, &c.ActiveLoans); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return clients, nil
}

const loanColumns = `l.id, l.client_id, l.principal, l.total_billed, l.installment_amount, l.installment_count,
	l.installments_paid, l.start_date, l.next_due_date, l.status, l.created_at, l.updated_at`

func loanFields(loan *models.Loan) []any {
	return []any{&loan.ID, &loan.ClientID, &loan.Principal, &loan.TotalBilled, &loan.InstallmentAmount,
		&loan.InstallmentCount, &loan.InstallmentsPaid, &loan.StartDate, &loan.NextDueDate, &loan.Status,
		&loan.CreatedAt, &loan.UpdatedAt}
}

// CreateLoan inserts a new loan into the database.
func (s *queries) CreateLoan(loan *models.Loan) error {
	_, err := s.exec(
		`INSERT INTO loans (id, client_id, principal, total_billed, installment_amount, installment_count, installments_paid, start_date, next_due_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ClientID.String(), loan.Principal, loan.TotalBilled, loan.InstallmentAmount,
		loan.InstallmentCount, loan.InstallmentsPaid, loan.StartDate, loan.NextDueDate, string(loan.Status),
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *queries) GetLoan(id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := s.queryRow(`SELECT `+loanColumns+` FROM loans l WHERE l.id = ?`+s.forUpdate(), id.String()).
		Scan(loanFields(&loan)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return &loan, nil
}

// UpdateLoan stores the payment progress of a loan. The amounts fixed at
// creation are never rewritten.
func (s *queries) UpdateLoan(loan *models.Loan) error {
	result, err := s.exec(
		`UPDATE loans SET installments_paid = ?, next_due_date = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.InstallmentsPaid, loan.NextDueDate, string(loan.Status), loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return fmt.Errorf("loan %s: %w", loan.ID, err)
	}
	return nil
}

// DeleteLoansForClient removes every loan of a client and reports how many went.
func (s *queries) DeleteLoansForClient(clientID uuid.UUID) (int64, error) {
	result, err := s.exec(`DELETE FROM loans WHERE client_id = ?`, clientID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete loans: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// ListActiveLoans retrieves all active loans with their client name, earliest due date first.
func (s *queries) ListActiveLoans() ([]*models.ActiveLoan, error) {
	rows, err := s.query(`SELECT `+loanColumns+`, c.name
		FROM loans l
		JOIN clients c ON c.id = l.client_id
		WHERE l.status = ?
		ORDER BY l.next_due_date ASC, c.name ASC, l.created_at ASC`, string(models.LoanStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to get active loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.ActiveLoan
	for rows.Next() {
		var loan models.ActiveLoan
		if err := rows.Scan(append(loanFields(&loan.Loan), &loan.ClientName)...); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, &loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// GetBalance reads the singleton cash balance.
func (s *queries) GetBalance() (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.queryRow(`SELECT balance FROM cash_balance WHERE id = ?`+s.forUpdate(), cashBalanceID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("cash balance row missing: %w", ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AddToBalance reads, adjusts and writes back the singleton balance. Callers
// run it inside InTx so the read and the write cannot interleave.
func (s *queries) AddToBalance(delta decimal.Decimal) (decimal.Decimal, error) {
	balance, err := s.GetBalance()
	if err != nil {
		return decimal.Zero, err
	}
	balance = balance.Add(delta)
	if _, err := s.exec(`UPDATE cash_balance SET balance = ? WHERE id = ?`, balance, cashBalanceID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	return balance, nil
}

// AppendHistory inserts a history entry and fills in its ID.
func (s *queries) AppendHistory(entry *models.HistoryEntry) error {
	err := s.queryRow(`INSERT INTO history (client_label, amount, detail, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		entry.ClientLabel, entry.Amount, entry.Detail, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *queries) RecentHistory(limit int) ([]*models.HistoryEntry, error) {
	rows, err := s.query(`SELECT id, client_label, amount, detail, created_at FROM history
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// ListHistory returns every entry, oldest first.
func (s *queries) ListHistory() ([]*models.HistoryEntry, error) {
	rows, err := s.query(`SELECT id, client_label, amount, detail, created_at FROM history
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]*models.HistoryEntry, error) {
	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.ClientLabel, &e.Amount, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for history: %w", err)
	}
	return entries, nil
}
