package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHistoryLimit = 50
	DefaultChartMonths  = 12
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = store.ErrNotFound
	ErrAlreadySettled = errors.New("loan already settled")
	// ErrPersistence means the store rejected or could not commit an
	// operation. The ledger never retries; the caller decides.
	ErrPersistence = errors.New("persistence failure")
)

// Ledger handles the business logic for clients, loans and the cash balance.
type Ledger struct {
	storage      store.Storage
	log          *logrus.Logger
	now          func() time.Time
	historyLimit int
	chartMonths  int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithHistoryLimit sets the number of entries RecentHistory returns when no
// limit is given.
func WithHistoryLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.historyLimit = n
		}
	}
}

// WithChartMonths sets the default length of MonthlyProfitSeries.
func WithChartMonths(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.chartMonths = n
		}
	}
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *logrus.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		storage:      s,
		log:          log,
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
		chartMonths:  DefaultChartMonths,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// fail classifies an error coming out of the store. Domain errors pass
// through untouched, anything else becomes ErrPersistence.
func (l *Ledger) fail(op string, err error) error {
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadySettled) {
		return err
	}
	l.log.WithError(err).WithField("op", op).Error("Ledger operation failed")
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// dateOnly drops the clock time and pins the calendar date to UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
