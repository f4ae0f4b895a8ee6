package ledger

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const deletedDetail = "Client Deleted"

// CreateClient registers a borrower.
func (l *Ledger) CreateClient(name, contact string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("client name is required")
	}

	client := &models.Client{
		ID:        uuid.New(),
		Name:      name,
		Contact:   strings.TrimSpace(contact),
		CreatedAt: l.now().UTC(),
	}
	if err := l.storage.CreateClient(client); err != nil {
		return nil, l.fail("create client", err)
	}

	l.log.WithField("client_id", client.ID).Info("Client created")
	return client, nil
}

// UpdateClient changes the name and contact of a client. History entries
// already written keep the old name.
func (l *Ledger) UpdateClient(id uuid.UUID, name, contact string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("client name is required")
	}

	var client *models.Client
	err := l.storage.InTx(func(q store.Queries) error {
		var err error
		if client, err = q.GetClient(id); err != nil {
			return err
		}
		client.Name = name
		client.Contact = strings.TrimSpace(contact)
		return q.UpdateClient(client)
	})
	if err != nil {
		return nil, l.fail("update client", err)
	}
	return client, nil
}

// GetClient retrieves a client by its ID.
func (l *Ledger) GetClient(id uuid.UUID) (*models.Client, error) {
	client, err := l.storage.GetClient(id)
	if err != nil {
		return nil, l.fail("get client", err)
	}
	return client, nil
}

// ListClients returns every client ordered by name, with the number of loans
// each one still owes on.
func (l *Ledger) ListClients() ([]*models.ClientSummary, error) {
	clients, err := l.storage.ListClientSummaries()
	if err != nil {
		return nil, l.fail("list clients", err)
	}
	return clients, nil
}

// DeleteClient removes a client and all of its loans. Disbursed principal is
// not refunded to the balance. A zero-amount history entry marks the deletion.
func (l *Ledger) DeleteClient(id uuid.UUID) error {
	var removed int64
	err := l.storage.InTx(func(q store.Queries) error {
		client, err := q.GetClient(id)
		if err != nil {
			return err
		}
		if removed, err = q.DeleteLoansForClient(id); err != nil {
			return err
		}
		if err := q.DeleteClient(id); err != nil {
			return err
		}
		return l.recordHistory(q, decimal.Zero, client.Name, deletedDetail)
	})
	if err != nil {
		return l.fail("delete client", err)
	}

	l.log.WithFields(logrus.Fields{
		"client_id":     id,
		"loans_removed": removed,
	}).Warn("Client deleted")
	return nil
}
