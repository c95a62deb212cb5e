// Package service orchestrates ledger operations: it validates input,
// drives the escrow state machine, and mirrors every successful mutation to
// the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blockvenue/escrowd/internal/escrow"
	"github.com/blockvenue/escrowd/internal/model"
)

// EscrowService owns the factory and all live ledger instances.
type EscrowService struct {
	factory *escrow.Factory
	store   Store
	logger  *slog.Logger
}

// New constructs an EscrowService. The service itself acts as the treasury
// and notification sink for every ledger the factory creates: transfers and
// notifications land in the store as they happen.
func New(store Store, logger *slog.Logger) *EscrowService {
	s := &EscrowService{store: store, logger: logger}
	s.factory = escrow.NewFactory(storeTreasury{store, logger}, storeSink{store, logger})
	return s
}

// storeTreasury records each outbound transfer. Settlement of actual native
// currency happens outside this service; the ledger's bookkeeping is the
// authoritative record.
type storeTreasury struct {
	store  Store
	logger *slog.Logger
}

func (t storeTreasury) Transfer(ledgerID, to string, amount int64, reason string) error {
	if err := t.store.RecordTransfer(context.Background(), ledgerID, to, amount, reason); err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	t.logger.Info("funds left custody", "ledger", ledgerID, "to", to, "amount", amount, "reason", reason)
	return nil
}

// storeSink appends notifications to the log. Log failures are not allowed
// to fail the operation that emitted them; they are logged and dropped.
type storeSink struct {
	store  Store
	logger *slog.Logger
}

func (s storeSink) Notify(n escrow.Notification) {
	if err := s.store.AppendNotification(context.Background(), n); err != nil {
		s.logger.Error("append notification", "ledger", n.LedgerID, "kind", n.Kind, "error", err)
	}
}

// Restore reloads all persisted ledgers into memory. Called once at boot.
func (s *EscrowService) Restore(ctx context.Context) error {
	snaps, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load ledgers: %w", err)
	}
	for _, snap := range snaps {
		if _, err := s.factory.Restore(snap); err != nil {
			return fmt.Errorf("restore ledger %s: %w", snap.ID, err)
		}
	}
	if len(snaps) > 0 {
		s.logger.Info("restored ledgers from store", "count", len(snaps))
	}
	return nil
}

// CreateEvent builds a new ledger owned by caller (or by req.Owner when
// set) and persists its initial snapshot.
func (s *EscrowService) CreateEvent(ctx context.Context, caller string, req model.CreateEventRequest) (model.EventResponse, error) {
	l, err := s.factory.Create(caller, escrow.Params{
		Name:             strings.TrimSpace(req.Name),
		DepositAmount:    req.DepositAmount,
		ParticipantLimit: req.ParticipantLimit,
		CoolingPeriod:    time.Duration(req.CoolingPeriodSeconds) * time.Second,
		Owner:            strings.TrimSpace(req.Owner),
	})
	if err != nil {
		return model.EventResponse{}, err
	}
	s.persist(ctx, l)
	s.logger.Info("event created", "ledger", l.ID(), "owner", l.Owner(), "deposit", l.DepositAmount())
	return model.EventFromSnapshot(l.Snapshot()), nil
}

// ListEvents returns all ledgers in creation order.
func (s *EscrowService) ListEvents(_ context.Context) []model.EventResponse {
	ledgers := s.factory.List()
	out := make([]model.EventResponse, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, model.EventFromSnapshot(l.Snapshot()))
	}
	return out
}

// GetEvent returns a single ledger view.
func (s *EscrowService) GetEvent(_ context.Context, id string) (model.EventResponse, error) {
	l, err := s.factory.Get(id)
	if err != nil {
		return model.EventResponse{}, err
	}
	return model.EventFromSnapshot(l.Snapshot()), nil
}

// Participants returns the participant table in registration order.
func (s *EscrowService) Participants(_ context.Context, id string) ([]escrow.Participant, error) {
	l, err := s.factory.Get(id)
	if err != nil {
		return nil, err
	}
	return l.Participants(), nil
}

// PayoutPreview returns what settlement would currently establish.
func (s *EscrowService) PayoutPreview(_ context.Context, id string) (int64, error) {
	l, err := s.factory.Get(id)
	if err != nil {
		return 0, err
	}
	return l.Payout(), nil
}

// Notifications returns the persisted notification log for a ledger.
func (s *EscrowService) Notifications(ctx context.Context, id string) ([]escrow.Notification, error) {
	if _, err := s.factory.Get(id); err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, id)
}

// Register deposits the caller's bond and records the participant.
func (s *EscrowService) Register(ctx context.Context, id, caller string, req model.RegisterRequest) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Register(caller, strings.TrimSpace(req.DisplayName), req.Amount)
	})
}

// Attend marks a batch of addresses as attended, all or nothing.
func (s *EscrowService) Attend(ctx context.Context, id, caller string, addrs []string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Attend(caller, addrs)
	})
}

// Payback settles the event, splitting the pool between attendees.
func (s *EscrowService) Payback(ctx context.Context, id, caller string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Payback(caller)
	})
}

// Cancel ends the event with a full per-head refund policy.
func (s *EscrowService) Cancel(ctx context.Context, id, caller string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Cancel(caller)
	})
}

// Withdraw pays out the caller's entitlement and returns the amount.
func (s *EscrowService) Withdraw(ctx context.Context, id, caller string) (int64, error) {
	l, err := s.factory.Get(id)
	if err != nil {
		return 0, err
	}
	amount, err := l.Withdraw(caller)
	if err != nil {
		return 0, err
	}
	s.persist(ctx, l)
	return amount, nil
}

// Clear sweeps the remaining balance to the owner after the cooling period.
func (s *EscrowService) Clear(ctx context.Context, id, caller string) (int64, error) {
	l, err := s.factory.Get(id)
	if err != nil {
		return 0, err
	}
	swept, err := l.Clear(caller)
	if err != nil {
		return 0, err
	}
	s.persist(ctx, l)
	return swept, nil
}

// SetName renames the event (before any registrations).
func (s *EscrowService) SetName(ctx context.Context, id, caller, name string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.ChangeName(caller, strings.TrimSpace(name))
	})
}

// SetLimit changes the participant cap.
func (s *EscrowService) SetLimit(ctx context.Context, id, caller string, n int) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.SetParticipantLimit(caller, n)
	})
}

// SetMetadataReference points the event at a new metadata URI.
func (s *EscrowService) SetMetadataReference(ctx context.Context, id, caller, uri string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.SetMetadataReference(caller, uri)
	})
}

// Grant adds admin addresses.
func (s *EscrowService) Grant(ctx context.Context, id, caller string, addrs []string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Grant(caller, addrs)
	})
}

// Revoke removes admin addresses.
func (s *EscrowService) Revoke(ctx context.Context, id, caller string, addrs []string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.Revoke(caller, addrs)
	})
}

// TransferOwnership hands the event to a new owner.
func (s *EscrowService) TransferOwnership(ctx context.Context, id, caller, newOwner string) error {
	return s.mutate(ctx, id, func(l *escrow.Ledger) error {
		return l.TransferOwnership(caller, strings.TrimSpace(newOwner))
	})
}

// mutate runs op against the ledger and mirrors the new state on success.
func (s *EscrowService) mutate(ctx context.Context, id string, op func(*escrow.Ledger) error) error {
	l, err := s.factory.Get(id)
	if err != nil {
		return err
	}
	if err := op(l); err != nil {
		// Domain errors pass through untouched so handlers can map them.
		var domainErr *escrow.Error
		if errors.As(err, &domainErr) {
			return err
		}
		return fmt.Errorf("ledger %s: %w", id, err)
	}
	s.persist(ctx, l)
	return nil
}

// persist mirrors the ledger's current snapshot. A store failure does not
// undo the in-memory mutation; it is logged so the mirror can be reconciled.
func (s *EscrowService) persist(ctx context.Context, l *escrow.Ledger) {
	if err := s.store.SaveSnapshot(ctx, l.Snapshot()); err != nil {
		s.logger.Error("persist ledger snapshot", "ledger", l.ID(), "error", err)
	}
}
