package escrow

import "time"

// NoteKind identifies a state-change notification emitted by a ledger.
type NoteKind string

const (
	NoteRegistered       NoteKind = "registered"
	NoteAttended         NoteKind = "attended"
	NoteSettled          NoteKind = "settled"
	NoteCancelled        NoteKind = "cancelled"
	NoteWithdrawn        NoteKind = "withdrawn"
	NoteCleared          NoteKind = "cleared"
	NoteAdminGranted     NoteKind = "admin_granted"
	NoteAdminRevoked     NoteKind = "admin_revoked"
	NoteMetadataUpdated  NoteKind = "metadata_updated"
	NoteNameChanged      NoteKind = "name_changed"
	NoteLimitChanged     NoteKind = "limit_changed"
	NoteOwnerTransferred NoteKind = "owner_transferred"
)

// Notification describes a single state change. Notifications are emitted
// synchronously, in operation order, after the state change they describe
// has been applied.
type Notification struct {
	ID          string    `json:"id"`
	LedgerID    string    `json:"ledger_id"`
	Kind        NoteKind  `json:"kind"`
	Address     string    `json:"address,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	URI         string    `json:"uri,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives notifications. Implementations must not call back into the
// emitting ledger; the notification is delivered while the ledger's lock is
// held.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Notification)

// Notify implements Sink.
func (f SinkFunc) Notify(n Notification) { f(n) }
