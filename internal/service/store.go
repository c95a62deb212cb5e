package service

import (
	"context"
	"sync"

	"github.com/blockvenue/escrowd/internal/escrow"
)

// Store persists ledger state. *repository.LedgerRepository is the
// production implementation; MemoryStore backs tests and local development
// without PostgreSQL.
type Store interface {
	SaveSnapshot(ctx context.Context, s escrow.Snapshot) error
	LoadAll(ctx context.Context) ([]escrow.Snapshot, error)
	AppendNotification(ctx context.Context, n escrow.Notification) error
	ListNotifications(ctx context.Context, ledgerID string) ([]escrow.Notification, error)
	RecordTransfer(ctx context.Context, ledgerID, to string, amount int64, reason string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]escrow.Snapshot
	notes     map[string][]escrow.Notification
	transfers map[string][]Transfer
}

// Transfer is one recorded fund movement out of custody.
type Transfer struct {
	LedgerID string
	To       string
	Amount   int64
	Reason   string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]escrow.Snapshot),
		notes:     make(map[string][]escrow.Notification),
		transfers: make(map[string][]Transfer),
	}
}

// SaveSnapshot implements Store.
func (m *MemoryStore) SaveSnapshot(_ context.Context, s escrow.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.ID] = s
	return nil
}

// LoadAll implements Store.
func (m *MemoryStore) LoadAll(_ context.Context) ([]escrow.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]escrow.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	return out, nil
}

// AppendNotification implements Store.
func (m *MemoryStore) AppendNotification(_ context.Context, n escrow.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[n.LedgerID] = append(m.notes[n.LedgerID], n)
	return nil
}

// ListNotifications implements Store.
func (m *MemoryStore) ListNotifications(_ context.Context, ledgerID string) ([]escrow.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]escrow.Notification(nil), m.notes[ledgerID]...), nil
}

// RecordTransfer implements Store.
func (m *MemoryStore) RecordTransfer(_ context.Context, ledgerID, to string, amount int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[ledgerID] = append(m.transfers[ledgerID], Transfer{ledgerID, to, amount, reason})
	return nil
}

// Transfers returns the recorded transfers for a ledger, oldest first.
func (m *MemoryStore) Transfers(ledgerID string) []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.transfers[ledgerID]...)
}
