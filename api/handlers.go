/*
handlers.go - HTTP API handlers for the Humble Choice archive

PURPOSE:
  Exposes the archive via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ingester and scheduler.

ENDPOINTS:
  Months:
    GET    /api/months          List archived months with their games
    GET    /api/months/{id}     Get one month by persisted id
    POST   /api/months          Ingest a scraped month

  Ingest:
    GET    /api/ingest/runs     Recent ingest cycles, newest first
    POST   /api/ingest/run      Run an ingest cycle now

  Ops:
    GET    /healthz             Liveness
    GET    /metrics             Prometheus metrics (when enabled)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (bad period, empty URL, malformed JSON)
  - 404: Month not found
  - 409: Conflicting write (retry is safe)
  - 500: Store failures
  - 503: Ingest scheduling disabled

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rex8112/HumbleScrapperBot/bundle"
	"github.com/rex8112/HumbleScrapperBot/ingest"
	"github.com/rex8112/HumbleScrapperBot/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ingester *ingest.Ingester

	// Scheduler is nil when periodic ingest is disabled.
	Scheduler *ingest.Scheduler

	// Metrics serves /metrics. Nil disables the route.
	Metrics http.Handler
}

// NewHandler creates a handler around an ingester.
func NewHandler(ingester *ingest.Ingester) *Handler {
	return &Handler{Ingester: ingester}
}

// =============================================================================
// MONTH ENDPOINTS
// =============================================================================

// ListMonths returns every archived month ordered by period.
func (h *Handler) ListMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.Ingester.Months(r.Context())
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	out := make([]MonthDTO, 0, len(months))
	for _, m := range months {
		out = append(out, toMonthDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMonth returns one month by its persisted id.
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid month id", err)
		return
	}

	m, found, err := h.Ingester.Month(r.Context(), bundle.ID(id))
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "month not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMonthDTO(m))
}

// IngestMonth archives a scraped month and reports which games are new.
// Responds 201 when the month itself is new, 200 otherwise.
func (h *Handler) IngestMonth(w http.ResponseWriter, r *http.Request) {
	var req IngestMonthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	fresh, err := req.toDoc().Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month", err)
		return
	}

	res, err := h.ingest(r, fresh)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, IngestMonthResponse{
		Month:   toMonthDTO(res.Month),
		Created: res.Created,
		Added:   toItemDTOs(res.Added),
	})
}

// ingest archives a posted month. With a scheduler configured the month goes
// through it as a one-off run, which serializes it with scheduled cycles and
// records it under the "api" source.
func (h *Handler) ingest(r *http.Request, m *bundle.Month) (ingest.Result, error) {
	if h.Scheduler == nil {
		return h.Ingester.Ingest(r.Context(), m)
	}
	src := ingest.StaticSource{Label: apiSource, Months: []*bundle.Month{m}}
	_, results, err := h.Scheduler.RunSource(r.Context(), src)
	if err != nil {
		return ingest.Result{}, err
	}
	if len(results) != 1 {
		return ingest.Result{}, fmt.Errorf("ingest of %s returned %d results", m.URL(), len(results))
	}
	return results[0], nil
}

// apiSource names runs started by POST /api/months.
const apiSource = "api"

// =============================================================================
// INGEST ENDPOINTS
// =============================================================================

// ListIngestRuns returns recent scheduler runs.
func (h *Handler) ListIngestRuns(w http.ResponseWriter, r *http.Request) {
	out := []RunDTO{}
	if h.Scheduler != nil {
		for _, run := range h.Scheduler.Runs() {
			out = append(out, toRunDTO(run))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// TriggerIngest runs one cycle synchronously. A failed cycle is still
// reported with 200; its status and error are in the body.
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest is not configured", nil)
		return
	}
	run := h.Scheduler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeArchiveError maps archive errors onto HTTP statuses.
func (h *Handler) writeArchiveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bundle.ErrInvalidPeriod), errors.Is(err, bundle.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, "invalid month", err)
	case bundle.IsInvalidState(err):
		writeError(w, http.StatusConflict, "invalid state", err)
	case bundle.IsRetryable(err):
		resp := ErrorResponse{Error: "conflicting write, retry", Code: bundle.ClassifyError(err), Details: err.Error()}
		writeJSON(w, http.StatusConflict, resp)
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("archive request failed")
		resp := ErrorResponse{Error: "archive error", Code: bundle.ClassifyError(err), Details: err.Error()}
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
