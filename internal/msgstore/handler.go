// Package msgstore serves a local stand-in for the backend message API,
// backed by the sqlite database.
package msgstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/db"
	"github.com/RichardoC/pawtrack/internal/httpmw"
	"github.com/RichardoC/pawtrack/internal/models"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Store interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, patientID string, offset, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, patientID string) (int, error)
	DeleteMessage(ctx context.Context, id string) error
}

type Handler struct {
	store  Store
	token  string
	logger *zap.Logger
}

// NewHandler returns the store handler. An empty token disables the bearer
// check.
func NewHandler(store Store, token string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  store,
		token:  token,
		logger: logger,
	}
}

// PagedMessages is the body returned when paginationRequired=true.
type PagedMessages struct {
	Items       []models.Message `json:"items"`
	HasNextPage bool             `json:"hasNextPage"`
	TotalCount  int              `json:"totalCount"`
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpmw.Logger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(h.requireToken)

	r.Get("/messages", h.ListMessages)
	r.Post("/messages", h.CreateMessage)
	r.Delete("/messages/{id}", h.DeleteMessage)

	return r
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && httpmw.BearerToken(r) != h.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListMessages returns one page of a patient's conversation. Without
// paginationRequired=true the page is returned as a bare array.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID := strings.TrimSpace(q.Get("patientId"))
	if patientID == "" {
		http.Error(w, "patientId is required", http.StatusBadRequest)
		return
	}

	page, err := intParam(q.Get("pageNumber"), 1)
	if err != nil {
		http.Error(w, "Invalid pageNumber", http.StatusBadRequest)
		return
	}
	size, err := intParam(q.Get("pageSize"), defaultPageSize)
	if err != nil {
		http.Error(w, "Invalid pageSize", http.StatusBadRequest)
		return
	}
	size = min(size, maxPageSize)

	total, err := h.store.CountMessages(r.Context(), patientID)
	if err != nil {
		h.logger.Error("failed to count messages", zap.Error(err), zap.String("patientId", patientID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if total == 0 && page == 1 {
		http.Error(w, "No messages found", http.StatusNotFound)
		return
	}

	offset := (page - 1) * size
	messages, err := h.store.ListMessages(r.Context(), patientID, offset, size)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err), zap.String("patientId", patientID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if q.Get("paginationRequired") == "true" {
		_ = json.NewEncoder(w).Encode(PagedMessages{
			Items:       messages,
			HasNextPage: offset+len(messages) < total,
			TotalCount:  total,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(messages)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(msg.PatientID) == "" || msg.Content == "" {
		http.Error(w, "patientId and content are required", http.StatusBadRequest)
		return
	}
	if msg.Role == "" {
		msg.Role = models.RoleUser
	}

	if err := h.store.SaveMessage(r.Context(), &msg); err != nil {
		h.logger.Error("failed to save message", zap.Error(err), zap.String("patientId", msg.PatientID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.DeleteMessage(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "Message not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to delete message", zap.Error(err), zap.String("id", id))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
