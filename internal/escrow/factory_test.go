package escrow

import (
	"errors"
	"testing"
	"time"
)

func TestCreateAppliesDefaults(t *testing.T) {
	f := NewFactory(&recordingTreasury{}, nil)

	l, err := f.Create("creator", Params{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := l.Name(); got != DefaultName {
		t.Fatalf("name = %q, want %q", got, DefaultName)
	}
	if got := l.DepositAmount(); got != DefaultDeposit {
		t.Fatalf("deposit = %d, want %d", got, DefaultDeposit)
	}
	if got := l.ParticipantLimit(); got != DefaultLimit {
		t.Fatalf("limit = %d, want %d", got, DefaultLimit)
	}
	if got := l.CoolingPeriod(); got != DefaultCooling {
		t.Fatalf("cooling = %v, want %v", got, DefaultCooling)
	}
	if got := l.Owner(); got != "creator" {
		t.Fatalf("owner = %q, want creator", got)
	}
	if l.ID() == "" {
		t.Fatal("missing instance ID")
	}
}

func TestCreateExplicitParamsWin(t *testing.T) {
	f := NewFactory(&recordingTreasury{}, nil)

	l, err := f.Create("creator", Params{
		Name:             "Hack Night",
		DepositAmount:    500,
		ParticipantLimit: 8,
		CoolingPeriod:    48 * time.Hour,
		Owner:            "boss",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if l.Name() != "Hack Night" || l.DepositAmount() != 500 || l.ParticipantLimit() != 8 {
		t.Fatal("explicit parameters not honoured")
	}
	if l.CoolingPeriod() != 48*time.Hour {
		t.Fatalf("cooling = %v", l.CoolingPeriod())
	}
	// Designated owner beats the creating caller.
	if got := l.Owner(); got != "boss" {
		t.Fatalf("owner = %q, want boss", got)
	}
}

func TestCreateRejectsBadParams(t *testing.T) {
	f := NewFactory(&recordingTreasury{}, nil)

	if _, err := f.Create("", Params{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("got %v, want ErrZeroAddress", err)
	}
	if _, err := f.Create("creator", Params{DepositAmount: -1}); !errors.Is(err, ErrIncorrectDeposit) {
		t.Fatalf("got %v, want ErrIncorrectDeposit", err)
	}
	if _, err := f.Create("creator", Params{ParticipantLimit: -1}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("got %v, want ErrInvalidLimit", err)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	f := NewFactory(&recordingTreasury{}, nil)

	a, err := f.Create("creator", Params{DepositAmount: 100})
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Create("creator", Params{DepositAmount: 100})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Register("alice", "Alice", 100); err != nil {
		t.Fatal(err)
	}
	if b.RegisteredCount() != 0 || b.IsRegistered("alice") {
		t.Fatal("state leaked between instances")
	}

	if err := a.Cancel("creator"); err != nil {
		t.Fatal(err)
	}
	if b.Ended() {
		t.Fatal("terminal flag leaked between instances")
	}
}

func TestFactoryGetAndList(t *testing.T) {
	f := NewFactory(&recordingTreasury{}, nil)

	if _, err := f.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		l, err := f.Create("creator", Params{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, l.ID())
	}

	for _, id := range ids {
		l, err := f.Get(id)
		if err != nil || l.ID() != id {
			t.Fatalf("get %s: %v", id, err)
		}
	}

	list := f.List()
	if len(list) != 3 {
		t.Fatalf("list = %d, want 3", len(list))
	}
	for i, l := range list {
		if l.ID() != ids[i] {
			t.Fatal("list not in creation order")
		}
	}
}
