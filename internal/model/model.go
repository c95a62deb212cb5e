// Package model defines the request and response types for the escrow API.
package model

import (
	"time"

	"github.com/blockvenue/escrowd/internal/escrow"
)

// CreateEventRequest is the payload for creating a new escrow event.
// Zero-valued fields fall back to the ledger defaults.
type CreateEventRequest struct {
	Name                 string `json:"name" validate:"omitempty,max=200"`
	DepositAmount        int64  `json:"deposit_amount" validate:"omitempty,gt=0"`
	ParticipantLimit     int    `json:"participant_limit" validate:"omitempty,gt=0"`
	CoolingPeriodSeconds int64  `json:"cooling_period_seconds" validate:"omitempty,gt=0"`
	Owner                string `json:"owner" validate:"omitempty,max=128"`
}

// RegisterRequest is the payload for registering for an event. Amount must
// equal the event's deposit exactly.
type RegisterRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=128"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
}

// AddressListRequest carries a batch of addresses for attend/grant/revoke.
type AddressListRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,dive,required"`
}

// UpdateNameRequest renames an event before anyone registers.
type UpdateNameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateLimitRequest changes the participant cap.
type UpdateLimitRequest struct {
	Limit int `json:"limit" validate:"required,gt=0"`
}

// TransferOwnerRequest hands the event to a new owner address.
type TransferOwnerRequest struct {
	Owner string `json:"owner" validate:"required,max=128"`
}

// TokenRequest asks for a bearer token bound to a wallet address. The
// address is taken on trust; participant identity is out of scope.
type TokenRequest struct {
	Address string `json:"address" validate:"required,max=128"`
}

// TokenResponse returns the issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// EventResponse is the public view of a ledger instance.
type EventResponse struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Owner                string     `json:"owner"`
	DepositAmount        int64      `json:"deposit_amount"`
	ParticipantLimit     int        `json:"participant_limit"`
	RegisteredCount      int        `json:"registered_count"`
	AttendedCount        int        `json:"attended_count"`
	Ended                bool       `json:"ended"`
	Cancelled            bool       `json:"cancelled"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	CoolingPeriodSeconds int64      `json:"cooling_period_seconds"`
	PayoutPerAttendee    int64      `json:"payout_per_attendee"`
	TotalHeldFunds       int64      `json:"total_held_funds"`
	MetadataReference    string     `json:"metadata_reference,omitempty"`
	Admins               []string   `json:"admins"`
}

// EventFromSnapshot builds an EventResponse from a ledger snapshot.
func EventFromSnapshot(s escrow.Snapshot) EventResponse {
	resp := EventResponse{
		ID:                   s.ID,
		Name:                 s.Name,
		Owner:                s.Owner,
		DepositAmount:        s.DepositAmount,
		ParticipantLimit:     s.ParticipantLimit,
		RegisteredCount:      len(s.Participants),
		Ended:                s.Ended,
		Cancelled:            s.Cancelled,
		CoolingPeriodSeconds: int64(s.CoolingPeriod.Seconds()),
		PayoutPerAttendee:    s.PayoutPerAttendee,
		TotalHeldFunds:       s.Balance,
		MetadataReference:    s.MetadataReference,
		Admins:               s.Admins,
	}
	if resp.Admins == nil {
		resp.Admins = []string{}
	}
	for _, p := range s.Participants {
		if p.Attended {
			resp.AttendedCount++
		}
	}
	if !s.EndedAt.IsZero() {
		at := s.EndedAt
		resp.EndedAt = &at
	}
	return resp
}

// PayoutResponse previews a settlement amount.
type PayoutResponse struct {
	PayoutPerAttendee int64 `json:"payout_per_attendee"`
}

// WithdrawResponse reports the amount paid out to the caller.
type WithdrawResponse struct {
	Amount int64 `json:"amount"`
}

// ClearResponse reports the amount swept to the owner.
type ClearResponse struct {
	Swept int64 `json:"swept"`
}

// MetadataResponse returns the stored reference after a metadata upload.
type MetadataResponse struct {
	URI string `json:"uri"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
