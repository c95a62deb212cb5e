package escrow

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no ledger exists for a requested ID.
var ErrNotFound = errors.New("ledger not found")

// Params are the construction parameters for a new ledger. Zero values fall
// back to the documented defaults: name "Test", deposit 0.02 native units,
// limit 20, cooling period one week, owner = creating caller.
type Params struct {
	Name             string
	DepositAmount    int64
	ParticipantLimit int
	CoolingPeriod    time.Duration
	Owner            string
}

// Factory constructs independent ledger instances from a common template
// and keeps a registry of them. Instances share no mutable state; only the
// treasury and sink wiring is common.
type Factory struct {
	mu       sync.RWMutex
	ledgers  map[string]*Ledger
	order    []string
	treasury Treasury
	sink     Sink
	now      func() time.Time
}

// NewFactory returns a factory wiring every created ledger to the given
// treasury and notification sink. A nil sink discards notifications.
func NewFactory(treasury Treasury, sink Sink) *Factory {
	return &Factory{
		ledgers:  make(map[string]*Ledger),
		treasury: treasury,
		sink:     sink,
		now:      time.Now,
	}
}

// Create builds a new ledger owned by p.Owner, or by caller when p.Owner is
// empty. Defaults are applied to every zero parameter.
func (f *Factory) Create(caller string, p Params) (*Ledger, error) {
	owner := p.Owner
	if owner == "" {
		owner = caller
	}
	if owner == "" {
		return nil, ErrZeroAddress
	}

	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.DepositAmount == 0 {
		p.DepositAmount = DefaultDeposit
	}
	if p.DepositAmount < 0 {
		return nil, ErrIncorrectDeposit
	}
	if p.ParticipantLimit == 0 {
		p.ParticipantLimit = DefaultLimit
	}
	if p.ParticipantLimit < 0 {
		return nil, ErrInvalidLimit
	}
	if p.CoolingPeriod == 0 {
		p.CoolingPeriod = DefaultCooling
	}

	l := &Ledger{
		id:            uuid.New().String(),
		name:          p.Name,
		deposit:       p.DepositAmount,
		limit:         p.ParticipantLimit,
		coolingPeriod: p.CoolingPeriod,
		owner:         owner,
		participants:  make(map[string]*Participant),
		treasury:      f.treasury,
		sink:          f.sink,
		now:           f.now,
	}

	f.mu.Lock()
	f.ledgers[l.id] = l
	f.order = append(f.order, l.id)
	f.mu.Unlock()
	return l, nil
}

// Get returns the ledger with the given ID or ErrNotFound.
func (f *Factory) Get(id string) (*Ledger, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	l, ok := f.ledgers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

// List returns all ledgers in creation order.
func (f *Factory) List() []*Ledger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Ledger, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.ledgers[id])
	}
	return out
}

// Restore rebuilds a ledger from a persisted snapshot and registers it.
// Used at boot to reload instances from storage.
func (f *Factory) Restore(s Snapshot) (*Ledger, error) {
	if s.ID == "" || s.Owner == "" {
		return nil, ErrZeroAddress
	}

	l := &Ledger{
		id:            s.ID,
		name:          s.Name,
		deposit:       s.DepositAmount,
		limit:         s.ParticipantLimit,
		coolingPeriod: s.CoolingPeriod,
		owner:         s.Owner,
		admins:        append([]string(nil), s.Admins...),
		participants:  make(map[string]*Participant, len(s.Participants)),
		registered:    len(s.Participants),
		balance:       s.Balance,
		payout:        s.PayoutPerAttendee,
		ended:         s.Ended,
		cancelled:     s.Cancelled,
		endedAt:       s.EndedAt,
		metadataRef:   s.MetadataReference,
		treasury:      f.treasury,
		sink:          f.sink,
		now:           f.now,
	}
	for _, p := range s.Participants {
		cp := p
		l.participants[p.Address] = &cp
		l.index = append(l.index, p.Address)
		if p.Attended {
			l.attended++
		}
	}

	f.mu.Lock()
	if _, ok := f.ledgers[l.id]; !ok {
		f.order = append(f.order, l.id)
	}
	f.ledgers[l.id] = l
	f.mu.Unlock()
	return l, nil
}

// Snapshot is a point-in-time copy of a ledger's full state, used by the
// persistence layer. Participants are in registration order.
type Snapshot struct {
	ID                string
	Name              string
	DepositAmount     int64
	ParticipantLimit  int
	CoolingPeriod     time.Duration
	Owner             string
	Admins            []string
	Balance           int64
	PayoutPerAttendee int64
	Ended             bool
	Cancelled         bool
	EndedAt           time.Time
	MetadataReference string
	Participants      []Participant
}

// Snapshot captures the ledger's full state under its lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		ID:                l.id,
		Name:              l.name,
		DepositAmount:     l.deposit,
		ParticipantLimit:  l.limit,
		CoolingPeriod:     l.coolingPeriod,
		Owner:             l.owner,
		Admins:            append([]string(nil), l.admins...),
		Balance:           l.balance,
		PayoutPerAttendee: l.payout,
		Ended:             l.ended,
		Cancelled:         l.cancelled,
		EndedAt:           l.endedAt,
		MetadataReference: l.metadataRef,
	}
	for _, addr := range l.index {
		s.Participants = append(s.Participants, *l.participants[addr])
	}
	return s
}
