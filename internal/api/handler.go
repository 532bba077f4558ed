package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/httpmw"
	"github.com/RichardoC/pawtrack/internal/models"
	"github.com/RichardoC/pawtrack/internal/purge"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// Purger runs a conversation purge with an already resolved token.
type Purger interface {
	Purge(ctx context.Context, token, patientID string) (*purge.Result, error)
}

// RunLister reads the purge audit log.
type RunLister interface {
	ListPurges(ctx context.Context, patientID string, limit int) ([]models.PurgeRun, error)
}

type Handler struct {
	purger     Purger
	runs       RunLister
	cookieName string
	logger     *zap.Logger
}

func NewHandler(purger Purger, runs RunLister, cookieName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		purger:     purger,
		runs:       runs,
		cookieName: cookieName,
		logger:     logger,
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type PurgeRunsResponse struct {
	PatientID string            `json:"patientId"`
	Runs      []models.PurgeRun `json:"runs"`
}

// TokenFromRequest resolves the caller's bearer token from the session
// cookie, falling back to the Authorization header.
func (h *Handler) TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		if v := strings.TrimSpace(cookie.Value); v != "" {
			return v
		}
	}
	return httpmw.BearerToken(r)
}

// PurgeConversation deletes every message of the patient named by the
// patientId query parameter.
func (h *Handler) PurgeConversation(w http.ResponseWriter, r *http.Request) {
	token := h.TokenFromRequest(r)
	patientID := r.URL.Query().Get("patientId")

	result, err := h.purger.Purge(r.Context(), token, patientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListPurges returns the recorded purge runs for a patient.
func (h *Handler) ListPurges(w http.ResponseWriter, r *http.Request) {
	if h.TokenFromRequest(r) == "" {
		h.writeError(w, r, purge.ErrUnauthenticated)
		return
	}

	patientID := r.URL.Query().Get("patientId")
	if err := purge.ValidatePatientID(patientID); err != nil {
		h.writeError(w, r, err)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListPurges(r.Context(), patientID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PurgeRunsResponse{PatientID: patientID, Runs: runs})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case purge.IsUnauthenticated(err):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
	case purge.IsInvalidInput(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "A valid patientId is required"})
	case backend.StatusCode(err) >= http.StatusBadRequest:
		status := backend.StatusCode(err)
		h.logger.Error("upstream rejected conversation listing",
			zap.Int("upstreamStatus", status),
			zap.Error(err),
			zap.String("path", r.URL.Path))
		writeJSON(w, status, ErrorResponse{Error: "Failed to fetch conversation messages"})
	default:
		h.logger.Error("failed to handle request",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
