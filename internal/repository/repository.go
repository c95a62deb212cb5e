// Package repository persists escrow ledger state in PostgreSQL.
// It uses pgx directly (no ORM) for transparency and performance.
//
// The in-memory ledger is the source of truth; each successful operation is
// mirrored here as a full snapshot inside one transaction, so the stored
// state is always a consistent point-in-time copy.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockvenue/escrowd/internal/escrow"
)

// LedgerRepository handles persistence for ledgers, participants, the
// notification log, and the transfer log.
type LedgerRepository struct {
	db *pgxpool.Pool
}

// New constructs a LedgerRepository.
func New(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (r *LedgerRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledgers (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL,
		deposit_amount         BIGINT NOT NULL,
		participant_limit      INT NOT NULL,
		cooling_period_seconds BIGINT NOT NULL,
		owner_address          TEXT NOT NULL,
		admin_addresses        TEXT[] NOT NULL DEFAULT '{}',
		balance                BIGINT NOT NULL,
		payout_per_attendee    BIGINT NOT NULL,
		ended                  BOOLEAN NOT NULL,
		cancelled              BOOLEAN NOT NULL,
		ended_at               TIMESTAMPTZ,
		metadata_reference     TEXT NOT NULL DEFAULT '',
		updated_at             TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS participants (
		ledger_id    TEXT NOT NULL REFERENCES ledgers(id),
		ordinal      INT NOT NULL,
		address      TEXT NOT NULL,
		display_name TEXT NOT NULL,
		attended     BOOLEAN NOT NULL,
		paid         BOOLEAN NOT NULL,
		PRIMARY KEY (ledger_id, address),
		UNIQUE (ledger_id, ordinal)
	);
	CREATE TABLE IF NOT EXISTS notifications (
		id           TEXT PRIMARY KEY,
		ledger_id    TEXT NOT NULL,
		kind         TEXT NOT NULL,
		address      TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		amount       BIGINT NOT NULL DEFAULT 0,
		uri          TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS notifications_ledger_idx
		ON notifications (ledger_id, created_at);
	CREATE TABLE IF NOT EXISTS transfers (
		id         TEXT PRIMARY KEY,
		ledger_id  TEXT NOT NULL,
		to_address TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`

	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SaveSnapshot upserts a ledger snapshot and its participant rows inside a
// single transaction.
func (r *LedgerRepository) SaveSnapshot(ctx context.Context, s escrow.Snapshot) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var endedAt *time.Time
	if !s.EndedAt.IsZero() {
		endedAt = &s.EndedAt
	}
	admins := s.Admins
	if admins == nil {
		admins = []string{}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO ledgers (id, name, deposit_amount, participant_limit,
			cooling_period_seconds, owner_address, admin_addresses, balance,
			payout_per_attendee, ended, cancelled, ended_at,
			metadata_reference, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			participant_limit = EXCLUDED.participant_limit,
			owner_address = EXCLUDED.owner_address,
			admin_addresses = EXCLUDED.admin_addresses,
			balance = EXCLUDED.balance,
			payout_per_attendee = EXCLUDED.payout_per_attendee,
			ended = EXCLUDED.ended,
			cancelled = EXCLUDED.cancelled,
			ended_at = EXCLUDED.ended_at,
			metadata_reference = EXCLUDED.metadata_reference,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.Name, s.DepositAmount, s.ParticipantLimit,
		int64(s.CoolingPeriod.Seconds()), s.Owner, admins, s.Balance,
		s.PayoutPerAttendee, s.Ended, s.Cancelled, endedAt,
		s.MetadataReference, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger: %w", err)
	}

	for i, p := range s.Participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO participants (ledger_id, ordinal, address, display_name, attended, paid)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (ledger_id, address) DO UPDATE SET
				attended = EXCLUDED.attended,
				paid = EXCLUDED.paid`,
			s.ID, i+1, p.Address, p.DisplayName, p.Attended, p.Paid,
		)
		if err != nil {
			return fmt.Errorf("upsert participant %s: %w", p.Address, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadAll reads every persisted ledger with its participants in
// registration order. Used once at boot to rebuild the in-memory instances.
func (r *LedgerRepository) LoadAll(ctx context.Context) ([]escrow.Snapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, deposit_amount, participant_limit,
			cooling_period_seconds, owner_address, admin_addresses, balance,
			payout_per_attendee, ended, cancelled, ended_at, metadata_reference
		 FROM ledgers
		 ORDER BY updated_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var snaps []escrow.Snapshot
	for rows.Next() {
		var (
			s       escrow.Snapshot
			cooling int64
			endedAt *time.Time
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.DepositAmount, &s.ParticipantLimit,
			&cooling, &s.Owner, &s.Admins, &s.Balance,
			&s.PayoutPerAttendee, &s.Ended, &s.Cancelled, &endedAt,
			&s.MetadataReference); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		s.CoolingPeriod = time.Duration(cooling) * time.Second
		if endedAt != nil {
			s.EndedAt = *endedAt
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		ps, err := r.loadParticipants(ctx, snaps[i].ID)
		if err != nil {
			return nil, err
		}
		snaps[i].Participants = ps
	}
	return snaps, nil
}

func (r *LedgerRepository) loadParticipants(ctx context.Context, ledgerID string) ([]escrow.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT address, display_name, attended, paid
		 FROM participants
		 WHERE ledger_id = $1
		 ORDER BY ordinal ASC`,
		ledgerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var ps []escrow.Participant
	for rows.Next() {
		var p escrow.Participant
		if err := rows.Scan(&p.Address, &p.DisplayName, &p.Attended, &p.Paid); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ps = append(ps, p)
	}
	return ps, rows.Err()
}

// AppendNotification adds one entry to the append-only notification log.
func (r *LedgerRepository) AppendNotification(ctx context.Context, n escrow.Notification) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, ledger_id, kind, address, display_name, amount, uri, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.LedgerID, string(n.Kind), n.Address, n.DisplayName, n.Amount, n.URI, n.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a ledger's notifications in emission order.
func (r *LedgerRepository) ListNotifications(ctx context.Context, ledgerID string) ([]escrow.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, ledger_id, kind, address, display_name, amount, uri, created_at
		 FROM notifications
		 WHERE ledger_id = $1
		 ORDER BY created_at ASC`,
		ledgerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notes []escrow.Notification
	for rows.Next() {
		var (
			n    escrow.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.LedgerID, &kind, &n.Address, &n.DisplayName, &n.Amount, &n.URI, &n.At); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = escrow.NoteKind(kind)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// RecordTransfer appends one entry to the transfer audit log. Every base
// unit leaving custody (payouts and sweeps) gets exactly one row.
func (r *LedgerRepository) RecordTransfer(ctx context.Context, ledgerID, to string, amount int64, reason string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO transfers (id, ledger_id, to_address, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), ledgerID, to, amount, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}
