package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanbook/pkg/config"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/scheduler"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	log     *logrus.Logger
}

// NewServer builds a Server around a Ledger on the given storage.
func NewServer(s store.Storage, log *logrus.Logger, opts ...ledger.Option) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, log, opts...),
		storage: s,
		log:     log,
	}
}

func (s *Server) routes(router *mux.Router) {
	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{id}", s.updateClientHandler).Methods("PUT")
	router.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")

	router.HandleFunc("/loans", s.dashboardHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")

	router.HandleFunc("/cash", s.cashHandler).Methods("GET")
	router.HandleFunc("/cash/adjustments", s.adjustCashHandler).Methods("POST")

	router.HandleFunc("/history", s.historyHandler).Methods("GET")
	router.HandleFunc("/history/monthly", s.monthlyHandler).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger errors onto status codes. Persistence failures may
// have left the store needing reconciliation and are logged as such.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAlreadySettled):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.WithError(err).Error("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

type clientRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.ListClients()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, err := s.ledger.CreateClient(req.Name, req.Contact)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, err := s.ledger.UpdateClient(id, req.Name, req.Contact)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteClient(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.ledger.Dashboard(time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID          uuid.UUID           `json:"client_id"`
		Principal         decimal.NullDecimal `json:"principal"`
		InstallmentAmount decimal.NullDecimal `json:"installment_amount"`
		InstallmentCount  int                 `json:"installment_count"`
		StartDate         string              `json:"start_date"`
		FirstDueDate      string              `json:"first_due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !req.Principal.Valid || !req.InstallmentAmount.Valid {
		http.Error(w, "principal and installment_amount are required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	firstDue, err := time.Parse(time.DateOnly, req.FirstDueDate)
	if err != nil {
		http.Error(w, "first_due_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(ledger.LoanRequest{
		ClientID:          req.ClientID,
		Principal:         req.Principal.Decimal,
		InstallmentAmount: req.InstallmentAmount.Decimal,
		InstallmentCount:  req.InstallmentCount,
		StartDate:         start,
		FirstDueDate:      firstDue,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := s.ledger.RecordPayment(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) cashHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.CurrentBalance()
	if err != nil {
		s.writeError(w, err)
		return
	}
	worth, err := s.ledger.TotalWorth()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"balance":     balance,
		"total_worth": worth,
	})
}

func (s *Server) adjustCashHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	balance, err := s.ledger.ManualAdjustment(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]decimal.Decimal{"balance": balance})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.ledger.RecentHistory(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) monthlyHandler(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	series, err := s.ledger.MonthlyProfitSeries(months)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg.LogLevel)

	sqlStore, err := store.NewSQLStore(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	defer sqlStore.Close()

	server := NewServer(sqlStore, logger,
		ledger.WithHistoryLimit(cfg.HistoryLimit),
		ledger.WithChartMonths(cfg.ChartMonths),
	)
	router := mux.NewRouter()
	server.routes(router)

	if cfg.OverdueScanSchedule != "" {
		jobs := scheduler.New(server.ledger, logger)
		if err := jobs.ScheduleOverdueScan(cfg.OverdueScanSchedule); err != nil {
			logger.Fatalf("Failed to schedule overdue scan: %v", err)
		}
		jobs.Start()
		defer jobs.Stop()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Errorf("Server failed: %v", err)
		return
	case <-quit:
		logger.Info("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
}
