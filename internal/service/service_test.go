package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/blockvenue/escrowd/internal/escrow"
	"github.com/blockvenue/escrowd/internal/model"
)

func newTestService(t *testing.T) (*EscrowService, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger), store
}

func createEvent(t *testing.T, svc *EscrowService, owner string, deposit int64) string {
	t.Helper()
	resp, err := svc.CreateEvent(context.Background(), owner, model.CreateEventRequest{
		Name:          "Community Dinner",
		DepositAmount: deposit,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return resp.ID
}

func TestCreateEventPersistsSnapshot(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	id := createEvent(t, svc, "owner", 100)

	snaps, err := store.LoadAll(ctx)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("persisted snapshots = %d (%v), want 1", len(snaps), err)
	}
	if snaps[0].ID != id || snaps[0].Owner != "owner" || snaps[0].DepositAmount != 100 {
		t.Fatalf("snapshot = %+v", snaps[0])
	}
}

func TestRegisterThroughServiceUpdatesMirror(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := createEvent(t, svc, "owner", 100)

	if err := svc.Register(ctx, id, "alice", model.RegisterRequest{DisplayName: "Alice", Amount: 100}); err != nil {
		t.Fatalf("register: %v", err)
	}

	event, err := svc.GetEvent(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if event.RegisteredCount != 1 || event.TotalHeldFunds != 100 {
		t.Fatalf("event view = %+v", event)
	}

	snaps, _ := store.LoadAll(ctx)
	if len(snaps[0].Participants) != 1 || snaps[0].Participants[0].Address != "alice" {
		t.Fatalf("mirror not updated: %+v", snaps[0].Participants)
	}
}

func TestDomainErrorsPassThroughUnwrapped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := createEvent(t, svc, "owner", 100)

	err := svc.Register(ctx, id, "alice", model.RegisterRequest{DisplayName: "Alice", Amount: 55})
	if !errors.Is(err, escrow.ErrIncorrectDeposit) {
		t.Fatalf("got %v, want ErrIncorrectDeposit", err)
	}
	if escrow.KindOf(err) != escrow.KindInvalidInput {
		t.Fatalf("kind = %q", escrow.KindOf(err))
	}

	if err := svc.Payback(ctx, "no-such-ledger", "owner"); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestWithdrawRecordsTransfer(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := createEvent(t, svc, "owner", 100)

	if err := svc.Register(ctx, id, "alice", model.RegisterRequest{DisplayName: "Alice", Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Attend(ctx, id, "owner", []string{"alice"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Payback(ctx, id, "owner"); err != nil {
		t.Fatal(err)
	}

	amount, err := svc.Withdraw(ctx, id, "alice")
	if err != nil || amount != 100 {
		t.Fatalf("withdraw = %d, %v", amount, err)
	}

	transfers := store.Transfers(id)
	if len(transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(transfers))
	}
	if transfers[0].To != "alice" || transfers[0].Amount != 100 || transfers[0].Reason != escrow.ReasonPayout {
		t.Fatalf("transfer = %+v", transfers[0])
	}
}

func TestNotificationsAreAppendedInOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := createEvent(t, svc, "owner", 100)

	if err := svc.Register(ctx, id, "alice", model.RegisterRequest{DisplayName: "Alice", Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, id, "owner"); err != nil {
		t.Fatal(err)
	}

	notes, err := svc.Notifications(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := []escrow.NoteKind{escrow.NoteRegistered, escrow.NoteCancelled}
	if len(notes) != len(want) {
		t.Fatalf("notifications = %d, want %d", len(notes), len(want))
	}
	for i, n := range notes {
		if n.Kind != want[i] {
			t.Fatalf("notification %d = %s, want %s", i, n.Kind, want[i])
		}
	}
}

func TestRestoreRebuildsLedgers(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := createEvent(t, svc, "owner", 100)

	if err := svc.Register(ctx, id, "alice", model.RegisterRequest{DisplayName: "Alice", Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, id, "owner"); err != nil {
		t.Fatal(err)
	}

	// A fresh service over the same store picks up where the old one left.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	revived := New(store, logger)
	if err := revived.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	event, err := revived.GetEvent(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !event.Ended || !event.Cancelled || event.RegisteredCount != 1 {
		t.Fatalf("restored event = %+v", event)
	}

	// Alice can still claim her refund on the revived instance.
	amount, err := revived.Withdraw(ctx, id, "alice")
	if err != nil || amount != 100 {
		t.Fatalf("withdraw after restore = %d, %v", amount, err)
	}
}
