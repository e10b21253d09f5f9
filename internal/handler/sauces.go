package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cangre-pos/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SauceStore defines the database methods needed by sauce handlers.
// Satisfied by *database.Queries.
type SauceStore interface {
	ListSauces(ctx context.Context) ([]database.Sauce, error)
	CreateSauce(ctx context.Context, name string) (database.Sauce, error)
	DeleteSauce(ctx context.Context, id uuid.UUID) (int64, error)
}

// SauceHandler handles the sauce catalog used by customizable products.
type SauceHandler struct {
	store SauceStore
}

// NewSauceHandler creates a new SauceHandler.
func NewSauceHandler(store SauceStore) *SauceHandler {
	return &SauceHandler{store: store}
}

// RegisterRoutes registers sauce endpoints on the given Chi router.
func (h *SauceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
}

type createSauceRequest struct {
	Name string `json:"name"`
}

// List returns all sauces.
func (h *SauceHandler) List(w http.ResponseWriter, r *http.Request) {
	sauces, err := h.store.ListSauces(r.Context())
	if err != nil {
		slog.Error("list sauces", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]sauceResponse, len(sauces))
	for i, s := range sauces {
		resp[i] = sauceResponse{ID: s.ID, Name: s.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new sauce.
func (h *SauceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSauceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	s, err := h.store.CreateSauce(r.Context(), req.Name)
	if err != nil {
		slog.Error("create sauce", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, sauceResponse{ID: s.ID, Name: s.Name})
}

// Delete removes a sauce.
func (h *SauceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sauce ID"})
		return
	}

	n, err := h.store.DeleteSauce(r.Context(), id)
	if err != nil {
		slog.Error("delete sauce", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "sauce not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
