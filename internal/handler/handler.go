// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/blockvenue/escrowd/internal/auth"
	"github.com/blockvenue/escrowd/internal/cache"
	"github.com/blockvenue/escrowd/internal/escrow"
	"github.com/blockvenue/escrowd/internal/metadata"
	"github.com/blockvenue/escrowd/internal/model"
	"github.com/blockvenue/escrowd/internal/service"
)

// EscrowHandler holds all HTTP handlers for the escrow API.
type EscrowHandler struct {
	svc      *service.EscrowService
	meta     *metadata.Store
	tokens   *auth.Manager
	inv      *cache.Invalidator
	validate *validator.Validate
}

// New constructs an EscrowHandler. meta and inv may be nil when the
// metadata store or response cache is not wired (tests, minimal deploys).
func New(svc *service.EscrowService, meta *metadata.Store, tokens *auth.Manager, inv *cache.Invalidator) *EscrowHandler {
	return &EscrowHandler{
		svc:      svc,
		meta:     meta,
		tokens:   tokens,
		inv:      inv,
		validate: validator.New(),
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), model.ErrorResponse{
		Error: err.Error(),
		Kind:  string(escrow.KindOf(err)),
	})
}

// statusFor maps domain failures to HTTP status codes by error kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotFound), errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrBadReference):
		return http.StatusBadRequest
	}
	switch escrow.KindOf(err) {
	case escrow.KindUnauthorized:
		return http.StatusForbidden
	case escrow.KindInvalidInput:
		return http.StatusBadRequest
	case escrow.KindInvalidState, escrow.KindAlreadyDone:
		return http.StatusConflict
	case escrow.KindNotEligible:
		return http.StatusForbidden
	case escrow.KindTimingNotElapsed:
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

func (h *EscrowHandler) decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// purge drops cached event views after a successful mutation.
func (h *EscrowHandler) purge(r *http.Request) {
	if h.inv != nil {
		h.inv.PurgeEvents(r.Context())
	}
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

// IssueToken handles POST /auth/token
// Issues a bearer token for a wallet address. The address is not verified;
// binding a session to a claimed address is all this layer promises.
func (h *EscrowHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req model.TokenRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tok, err := h.tokens.GenerateToken(req.Address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, model.TokenResponse{Token: tok})
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EscrowHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), Caller(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EscrowHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListEvents(r.Context()))
}

// GetEvent handles GET /events/{id}
func (h *EscrowHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListParticipants handles GET /events/{id}/participants
// Participants are returned in registration order (ordinal 1 first).
func (h *EscrowHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ps == nil {
		ps = []escrow.Participant{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// PayoutPreview handles GET /events/{id}/payout
func (h *EscrowHandler) PayoutPreview(w http.ResponseWriter, r *http.Request) {
	payout, err := h.svc.PayoutPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.PayoutResponse{PayoutPerAttendee: payout})
}

// ListNotifications handles GET /events/{id}/notifications
func (h *EscrowHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.Notifications(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if notes == nil {
		notes = []escrow.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// ─── Participant operations ───────────────────────────────────────────────────

// Register handles POST /events/{id}/register
func (h *EscrowHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Register(r.Context(), chi.URLParam(r, "id"), Caller(r), req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusCreated)
}

// Withdraw handles POST /events/{id}/withdraw
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := h.svc.Withdraw(r.Context(), chi.URLParam(r, "id"), Caller(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusOK, model.WithdrawResponse{Amount: amount})
}

// ─── Privileged operations ────────────────────────────────────────────────────

// Attend handles POST /events/{id}/attend
func (h *EscrowHandler) Attend(w http.ResponseWriter, r *http.Request) {
	var req model.AddressListRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Attend(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Addresses); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// Payback handles POST /events/{id}/payback
func (h *EscrowHandler) Payback(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Payback(r.Context(), chi.URLParam(r, "id"), Caller(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /events/{id}/cancel
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), Caller(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles POST /events/{id}/clear
func (h *EscrowHandler) Clear(w http.ResponseWriter, r *http.Request) {
	swept, err := h.svc.Clear(r.Context(), chi.URLParam(r, "id"), Caller(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusOK, model.ClearResponse{Swept: swept})
}

// UpdateName handles PATCH /events/{id}/name
func (h *EscrowHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateNameRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SetName(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLimit handles PATCH /events/{id}/limit
func (h *EscrowHandler) UpdateLimit(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateLimitRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SetLimit(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Limit); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// TransferOwner handles PATCH /events/{id}/owner
func (h *EscrowHandler) TransferOwner(w http.ResponseWriter, r *http.Request) {
	var req model.TransferOwnerRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.TransferOwnership(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Owner); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// GrantAdmins handles POST /events/{id}/admins
func (h *EscrowHandler) GrantAdmins(w http.ResponseWriter, r *http.Request) {
	var req model.AddressListRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Grant(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Addresses); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAdmins handles DELETE /events/{id}/admins
func (h *EscrowHandler) RevokeAdmins(w http.ResponseWriter, r *http.Request) {
	var req model.AddressListRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Revoke(r.Context(), chi.URLParam(r, "id"), Caller(r), req.Addresses); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Metadata ─────────────────────────────────────────────────────────────────

// UploadMetadata handles PUT /events/{id}/metadata
// Stores the request body in the blob store and points the event's
// metadata reference at it. The body is opaque to the ledger.
func (h *EscrowHandler) UploadMetadata(w http.ResponseWriter, r *http.Request) {
	if h.meta == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(body) == 0 || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON document")
		return
	}

	uri, err := h.meta.Put(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store metadata")
		return
	}

	if err := h.svc.SetMetadataReference(r.Context(), chi.URLParam(r, "id"), Caller(r), uri); err != nil {
		writeDomainError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusOK, model.MetadataResponse{URI: uri})
}

// ResolveMetadata handles GET /metadata/{digest}
func (h *EscrowHandler) ResolveMetadata(w http.ResponseWriter, r *http.Request) {
	if h.meta == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not configured")
		return
	}

	doc, err := h.meta.Resolve(r.Context(), metadata.Scheme+chi.URLParam(r, "digest"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
