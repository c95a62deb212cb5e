// Package escrow implements the escrow ledger for event commitments:
// participants deposit a fixed bond to register, and the pooled deposits are
// redistributed to attendees at settlement (or refunded in full on
// cancellation). Each Ledger is an independent state machine; all operations
// on one instance are serialized and atomic: they either apply completely
// or leave the ledger untouched.
package escrow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NativeUnit is the number of base units in one native currency unit.
// All amounts in this package are integer base units.
const NativeUnit int64 = 1e18

// Construction defaults, applied by the factory when a parameter is zero.
const (
	DefaultName    = "Test"
	DefaultDeposit = NativeUnit / 50 // 0.02 native units
	DefaultLimit   = 20
	DefaultCooling = 7 * 24 * time.Hour
)

// Transfer reasons recorded by the treasury.
const (
	ReasonPayout = "payout"
	ReasonSweep  = "sweep"
)

// Treasury performs the external transfer of base units out of custody.
// It is the only point where control leaves the ledger, and it is invoked
// strictly after the internal bookkeeping for the transfer has been applied.
type Treasury interface {
	Transfer(ledgerID, to string, amount int64, reason string) error
}

// Participant is a registrant's record. Records are created on registration
// and never deleted; Attended and Paid only ever transition false to true.
type Participant struct {
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Attended    bool   `json:"attended"`
	Paid        bool   `json:"paid"`
}

// Ledger is the escrow state machine for a single event. The zero value is
// not usable; construct instances through a Factory.
type Ledger struct {
	mu sync.Mutex

	id            string
	name          string
	deposit       int64
	limit         int
	coolingPeriod time.Duration

	owner  string
	admins []string

	participants map[string]*Participant
	index        []string // registration order; index[i] holds ordinal i+1

	registered  int
	attended    int
	balance     int64
	payout      int64
	ended       bool
	cancelled   bool
	endedAt     time.Time
	metadataRef string

	treasury Treasury
	sink     Sink
	now      func() time.Time
}

// Register records a new participant. The caller must pay exactly the
// deposit amount; the funds enter custody atomically with the state change.
//
// Precondition order is part of the contract: ended, then deposit mismatch,
// then limit, then duplicate registration. When several are violated at
// once the caller sees the first.
func (l *Ledger) Register(caller, displayName string, paidAmount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller == "" {
		return ErrZeroAddress
	}
	if l.ended {
		return ErrEventEnded
	}
	if paidAmount != l.deposit {
		return ErrIncorrectDeposit
	}
	if l.registered >= l.limit {
		return ErrLimitReached
	}
	if _, ok := l.participants[caller]; ok {
		return ErrAlreadyRegistered
	}

	l.registered++
	l.participants[caller] = &Participant{DisplayName: displayName, Address: caller}
	l.index = append(l.index, caller)
	l.balance += paidAmount

	l.emit(Notification{Kind: NoteRegistered, Address: caller, DisplayName: displayName, Amount: paidAmount})
	return nil
}

// Attend marks each address in the batch as attended. The batch is
// all-or-nothing: every element is validated before any is mutated, so an
// unregistered or already-attended address anywhere in the batch leaves the
// whole ledger unchanged. Attendance is monotonic and survives cancellation.
func (l *Ledger) Attend(caller string, addrs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isAdmin(caller) {
		return ErrNotAdmin
	}
	if l.ended {
		return ErrEventEnded
	}

	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		if addr == "" {
			return ErrZeroAddress
		}
		p, ok := l.participants[addr]
		if !ok {
			return ErrNotRegistered
		}
		// A repeat within the batch would be attended by the time the
		// second element applied, so it fails the same way.
		if _, dup := seen[addr]; dup || p.Attended {
			return ErrAlreadyAttended
		}
		seen[addr] = struct{}{}
	}

	for _, addr := range addrs {
		l.participants[addr].Attended = true
		l.attended++
		l.emit(Notification{Kind: NoteAttended, Address: addr})
	}
	return nil
}

// Payback settles the event: the pooled balance is split evenly between
// attendees (integer division; any remainder stays in custody until Clear)
// and the event ends. With zero attendees the payout stays zero but the
// event still ends. This is the only way a nonzero pooled payout is
// established.
func (l *Ledger) Payback(caller string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if l.ended {
		return ErrEventEnded
	}

	if l.attended > 0 {
		l.payout = l.balance / int64(l.attended)
	}
	l.ended = true
	l.endedAt = l.now()

	l.emit(Notification{Kind: NoteSettled, Amount: l.payout})
	return nil
}

// Cancel ends the event and entitles every registrant, attended or not, to
// a refund of exactly the deposit amount. The refund is a fixed per-head
// amount, not a division of the pool; it must stay a separate code path
// from Payback because the two differ whenever attendance is partial.
func (l *Ledger) Cancel(caller string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if l.ended {
		return ErrEventEnded
	}

	l.payout = l.deposit
	l.cancelled = true
	l.ended = true
	l.endedAt = l.now()

	l.emit(Notification{Kind: NoteCancelled, Amount: l.payout})
	return nil
}

// Withdraw pays the caller their share once the event has ended. Eligible
// callers are attendees after Payback, or any registrant after Cancel; each
// may withdraw at most once. Returns the amount transferred.
func (l *Ledger) Withdraw(caller string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ended {
		return 0, ErrNotEnded
	}
	if l.payout <= 0 {
		return 0, ErrNothingToWithdraw
	}
	p, ok := l.participants[caller]
	if !ok {
		return 0, ErrNotRegistered
	}
	if !l.cancelled && !p.Attended {
		return 0, ErrNotEligible
	}
	if p.Paid {
		return 0, ErrAlreadyPaid
	}

	// Mark paid before the external transfer: a re-entrant call during the
	// transfer must observe Paid and fail rather than draw a second payout.
	p.Paid = true
	l.balance -= l.payout
	if err := l.treasury.Transfer(l.id, caller, l.payout, ReasonPayout); err != nil {
		p.Paid = false
		l.balance += l.payout
		return 0, fmt.Errorf("transfer payout: %w", err)
	}

	l.emit(Notification{Kind: NoteWithdrawn, Address: caller, Amount: l.payout})
	return l.payout, nil
}

// Clear sweeps the entire remaining balance (undistributed remainder plus
// unclaimed payouts) to the owner once the cooling period after settlement
// has elapsed. Sweeping an already-empty ledger succeeds with zero effect.
func (l *Ledger) Clear(caller string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return 0, ErrNotOwner
	}
	if !l.ended {
		return 0, ErrNotEnded
	}
	if !l.now().After(l.endedAt.Add(l.coolingPeriod)) {
		return 0, ErrCoolingPeriod
	}

	swept := l.balance
	l.balance = 0
	if swept > 0 {
		if err := l.treasury.Transfer(l.id, l.owner, swept, ReasonSweep); err != nil {
			l.balance = swept
			return 0, fmt.Errorf("sweep funds: %w", err)
		}
	}

	l.emit(Notification{Kind: NoteCleared, Address: l.owner, Amount: swept})
	return swept, nil
}

// SetParticipantLimit changes the registration cap while the event is
// active. Lowering it below the current registration count only blocks
// further registrations; existing records are unaffected.
func (l *Ledger) SetParticipantLimit(caller string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if l.ended {
		return ErrEventEnded
	}
	if n <= 0 {
		return ErrInvalidLimit
	}

	l.limit = n
	l.emit(Notification{Kind: NoteLimitChanged, Amount: int64(n)})
	return nil
}

// ChangeName renames the event. Allowed only before anyone has registered.
func (l *Ledger) ChangeName(caller, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if l.registered > 0 {
		return ErrNameLocked
	}

	l.name = name
	l.emit(Notification{Kind: NoteNameChanged, DisplayName: name})
	return nil
}

// SetMetadataReference points the ledger at a new off-chain metadata
// document. Purely descriptive: any admin may change it at any time, in any
// state, and the ledger never inspects the content behind the URI.
func (l *Ledger) SetMetadataReference(caller, uri string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isAdmin(caller) {
		return ErrNotAdmin
	}

	l.metadataRef = uri
	l.emit(Notification{Kind: NoteMetadataUpdated, URI: uri})
	return nil
}

// ─── Read-only queries ───────────────────────────────────────────────────────

// ID returns the ledger's instance identifier.
func (l *Ledger) ID() string { return l.id }

// Name returns the display name.
func (l *Ledger) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// DepositAmount returns the fixed per-registration deposit in base units.
func (l *Ledger) DepositAmount() int64 { return l.deposit }

// ParticipantLimit returns the current registration cap.
func (l *Ledger) ParticipantLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// CoolingPeriod returns the delay after settlement before Clear is allowed.
func (l *Ledger) CoolingPeriod() time.Duration { return l.coolingPeriod }

// RegisteredCount returns the number of registered participants.
func (l *Ledger) RegisteredCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}

// AttendedCount returns the number of participants marked as attended.
func (l *Ledger) AttendedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attended
}

// Ended reports whether the event has reached a terminal state.
func (l *Ledger) Ended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ended
}

// Cancelled reports whether the event ended by cancellation.
func (l *Ledger) Cancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

// EndedAt returns the settlement timestamp, zero while the event is active.
func (l *Ledger) EndedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endedAt
}

// MetadataReference returns the current metadata URI.
func (l *Ledger) MetadataReference() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metadataRef
}

// TotalHeldFunds returns the current custody balance in base units.
func (l *Ledger) TotalHeldFunds() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// PayoutPerAttendee returns the settled per-head payout, zero until the
// event ends.
func (l *Ledger) PayoutPerAttendee() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payout
}

// Payout previews what Payback would currently establish, without mutating
// state. Once the event has ended it returns the settled amount.
func (l *Ledger) Payout() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return l.payout
	}
	if l.attended == 0 {
		return 0
	}
	return l.balance / int64(l.attended)
}

// IsRegistered reports whether addr has a participant record.
func (l *Ledger) IsRegistered(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.participants[addr]
	return ok
}

// IsAttended reports whether addr has been marked as attended.
func (l *Ledger) IsAttended(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.participants[addr]
	return ok && p.Attended
}

// IsPaid reports whether addr has already withdrawn its payout.
func (l *Ledger) IsPaid(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.participants[addr]
	return ok && p.Paid
}

// Participants returns copies of all participant records in registration
// order (ordinal 1 first).
func (l *Ledger) Participants() []Participant {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Participant, 0, len(l.index))
	for _, addr := range l.index {
		out = append(out, *l.participants[addr])
	}
	return out
}

func (l *Ledger) emit(n Notification) {
	if l.sink == nil {
		return
	}
	n.ID = uuid.New().String()
	n.LedgerID = l.id
	n.At = l.now()
	l.sink.Notify(n)
}
