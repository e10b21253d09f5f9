package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/middleware"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ClosureServicer defines the service methods needed by closure and
// cashier session handlers. Satisfied by *service.ClosureService.
type ClosureServicer interface {
	Today() pgtype.Date
	Status(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	Propose(ctx context.Context, date pgtype.Date, proposedBy uuid.UUID) (database.DailyClosure, error)
	Approve(ctx context.Context, date pgtype.Date, closedBy uuid.UUID) (database.DailyClosure, error)
	Reopen(ctx context.Context, date pgtype.Date) (database.DailyClosure, error)
	OpenSession(ctx context.Context, userID uuid.UUID, startAmount decimal.Decimal) (database.CashierSession, error)
	CloseSession(ctx context.Context, id uuid.UUID, endAmount decimal.Decimal) (database.CashierSession, error)
	ApproveSession(ctx context.Context, id uuid.UUID) (database.CashierSession, error)
	ListSessions(ctx context.Context, date pgtype.Date) ([]database.CashierSession, error)
}

// ClosureHandler handles daily closure and cashier session endpoints.
type ClosureHandler struct {
	svc ClosureServicer
}

// NewClosureHandler creates a new ClosureHandler.
func NewClosureHandler(svc ClosureServicer) *ClosureHandler {
	return &ClosureHandler{svc: svc}
}

// RegisterRoutes registers closure endpoints reachable by cashiers.
func (h *ClosureHandler) RegisterRoutes(r chi.Router) {
	r.Get("/closures/today", h.Today)
	r.Get("/closures/{date}", h.Status)
	r.Post("/closures/{date}/propose", h.Propose)
	r.Post("/sessions", h.OpenSession)
	r.Post("/sessions/{id}/close", h.CloseSession)
	r.Get("/sessions", h.ListSessions)
}

// RegisterAdminRoutes registers the closure endpoints restricted to admins.
func (h *ClosureHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/closures/{date}/approve", h.Approve)
	r.Post("/closures/{date}/reopen", h.Reopen)
	r.Post("/sessions/{id}/approve", h.ApproveSession)
}

// --- Request / Response types ---

type openSessionRequest struct {
	StartAmount string `json:"start_amount"`
}

type closeSessionRequest struct {
	EndAmount string `json:"end_amount"`
}

type closureResponse struct {
	ClosureDate string     `json:"closure_date"`
	Status      string     `json:"status"`
	ProposedBy  *uuid.UUID `json:"proposed_by"`
	ProposedAt  *time.Time `json:"proposed_at"`
	ClosedBy    *uuid.UUID `json:"closed_by"`
	ClosedAt    *time.Time `json:"closed_at"`
}

type sessionResponse struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	BusinessDate string     `json:"business_date"`
	StartAmount  string     `json:"start_amount"`
	StartTime    time.Time  `json:"start_time"`
	EndAmount    *string    `json:"end_amount"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
}

func toClosureResponse(c database.DailyClosure) closureResponse {
	resp := closureResponse{
		ClosureDate: c.ClosureDate.Time.Format("2006-01-02"),
		Status:      c.Status,
	}
	if c.ProposedBy.Valid {
		id := uuid.UUID(c.ProposedBy.Bytes)
		resp.ProposedBy = &id
	}
	if c.ProposedAt.Valid {
		resp.ProposedAt = &c.ProposedAt.Time
	}
	if c.ClosedBy.Valid {
		id := uuid.UUID(c.ClosedBy.Bytes)
		resp.ClosedBy = &id
	}
	if c.ClosedAt.Valid {
		resp.ClosedAt = &c.ClosedAt.Time
	}
	return resp
}

func toSessionResponse(s database.CashierSession) sessionResponse {
	resp := sessionResponse{
		ID:           s.ID,
		UserID:       s.UserID,
		BusinessDate: s.BusinessDate.Time.Format("2006-01-02"),
		StartAmount:  service.NumericToDecimal(s.StartAmount).StringFixed(2),
		StartTime:    s.StartTime,
		Status:       s.Status,
	}
	if s.EndAmount.Valid {
		amt := service.NumericToDecimal(s.EndAmount).StringFixed(2)
		resp.EndAmount = &amt
	}
	if s.EndTime.Valid {
		resp.EndTime = &s.EndTime.Time
	}
	return resp
}

// --- Handlers ---

// Today handles GET /api/closures/today.
func (h *ClosureHandler) Today(w http.ResponseWriter, r *http.Request) {
	closure, err := h.svc.Status(r.Context(), h.svc.Today())
	if err != nil {
		slog.Error("closure status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// Status handles GET /api/closures/{date}.
func (h *ClosureHandler) Status(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	closure, err := h.svc.Status(r.Context(), date)
	if err != nil {
		slog.Error("closure status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// Propose handles POST /api/closures/{date}/propose. Cashiers propose a
// closure at end of shift; the day stops accepting orders once an admin
// approves it.
func (h *ClosureHandler) Propose(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	closure, err := h.svc.Propose(r.Context(), date, claims.UserID)
	if err != nil {
		slog.Error("propose closure", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// Approve handles POST /api/closures/{date}/approve.
func (h *ClosureHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	closure, err := h.svc.Approve(r.Context(), date, claims.UserID)
	if err != nil {
		slog.Error("approve closure", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// Reopen handles POST /api/closures/{date}/reopen.
func (h *ClosureHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	closure, err := h.svc.Reopen(r.Context(), date)
	if err != nil {
		if errors.Is(err, service.ErrClosureNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("reopen closure", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// OpenSession handles POST /api/sessions. The caller becomes the session's
// cashier; one unapproved session per cashier per business day.
func (h *ClosureHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.StartAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_amount must be a number"})
		return
	}

	session, err := h.svc.OpenSession(r.Context(), claims.UserID, amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrSessionAlreadyOpen):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			slog.Error("open cashier session", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// CloseSession handles POST /api/sessions/{id}/close.
func (h *ClosureHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.EndAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_amount must be a number"})
		return
	}

	session, err := h.svc.CloseSession(r.Context(), id, amount)
	if err != nil {
		h.writeSessionError(w, "close cashier session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// ApproveSession handles POST /api/sessions/{id}/approve.
func (h *ClosureHandler) ApproveSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	session, err := h.svc.ApproveSession(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, "approve cashier session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// ListSessions handles GET /api/sessions?date=YYYY-MM-DD. Defaults to the
// current business day.
func (h *ClosureHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	date := h.svc.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		date = pgtype.Date{Time: t, Valid: true}
	}

	sessions, err := h.svc.ListSessions(r.Context(), date)
	if err != nil {
		slog.Error("list cashier sessions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = toSessionResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func (h *ClosureHandler) writeSessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrSessionNotOpen),
		errors.Is(err, service.ErrSessionNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func parseDateParam(w http.ResponseWriter, r *http.Request) (pgtype.Date, bool) {
	t, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
		return pgtype.Date{}, false
	}
	return pgtype.Date{Time: t, Valid: true}, true
}
