// Package api is the HTTP surface of the portfolio ledger service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/analytics"
	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/portfolio"
)

var errNoJournal = errors.New("transaction journal is not configured")

// Store is the persistence the handlers read directly
type Store interface {
	Ping(ctx context.Context) error
	GetTransactionsByPortfolio(ctx context.Context, owner, name string) ([]*models.Transaction, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	portfolios *portfolio.Manager
	analyzer   *analytics.Analyzer
	store      Store
	clock      dates.Clock
}

// NewHandler creates a new Handler. store may be nil when the service runs
// without a database.
func NewHandler(portfolios *portfolio.Manager, analyzer *analytics.Analyzer, store Store) *Handler {
	return &Handler{
		portfolios: portfolios,
		analyzer:   analyzer,
		store:      store,
		clock:      dates.SystemClock,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

// respondError maps the error class to a status code
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrConsistency):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errNoJournal):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", apperr.ErrValidation, err)
	}
	return nil
}

// queryDate reads a yyyy-MM-dd query parameter, falling back to def when absent
func queryDate(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if def.IsZero() {
			return time.Time{}, fmt.Errorf("%w: %s is required", apperr.ErrValidation, name)
		}
		return def, nil
	}
	return parseDate(name, v)
}

func parseDate(name, v string) (time.Time, error) {
	d, err := dates.Parse(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", apperr.ErrValidation, name, err)
	}
	return d, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", apperr.ErrValidation, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", apperr.ErrValidation, name)
	}
	return n, nil
}

type pointResponse struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type chartResponse struct {
	Start  string          `json:"start"`
	End    string          `json:"end"`
	Points []pointResponse `json:"points,omitempty"`
	Chart  string          `json:"chart"`
}
