// Package scheduler runs the periodic read-only checks over the ledger.
package scheduler

import (
	"fmt"
	"time"

	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// OverdueSource lists the active loans past their due date.
type OverdueSource interface {
	OverdueLoans(asOf time.Time) ([]models.ActiveLoanView, error)
}

// Scheduler wraps a cron runner with the overdue loan scan.
type Scheduler struct {
	cron   *cron.Cron
	source OverdueSource
	log    *logrus.Logger
	now    func() time.Time
}

// New creates a Scheduler that is idle until Start is called.
func New(source OverdueSource, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		source: source,
		log:    log,
		now:    time.Now,
	}
}

// ScheduleOverdueScan registers the scan under a standard five field cron spec.
func (s *Scheduler) ScheduleOverdueScan(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.ScanOverdue() }); err != nil {
		return fmt.Errorf("invalid overdue scan schedule %q: %w", spec, err)
	}
	return nil
}

// ScanOverdue logs every overdue loan and returns how many were found.
func (s *Scheduler) ScanOverdue() int {
	asOf := s.now()
	loans, err := s.source.OverdueLoans(asOf)
	if err != nil {
		s.log.WithError(err).Error("Overdue scan failed")
		return 0
	}

	for _, loan := range loans {
		days := int(asOf.Sub(loan.NextDueDate).Hours() / 24)
		s.log.WithFields(logrus.Fields{
			"loan_id":      loan.LoanID,
			"client":       loan.ClientName,
			"due_date":     loan.NextDueDate.Format("2006-01-02"),
			"days_overdue": days,
			"installment":  fmt.Sprintf("%d/%d", loan.InstallmentsPaid+1, loan.InstallmentCount),
			"amount":       loan.InstallmentAmount.StringFixed(2),
		}).Warn("Installment overdue")
	}
	s.log.WithField("overdue", len(loans)).Info("Overdue scan complete")
	return len(loans)
}

// Start runs the registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
