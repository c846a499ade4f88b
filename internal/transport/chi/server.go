package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
	healthuc "github.com/kailas-cloud/traffmeter/internal/usecase/health"
)

// Error codes returned in the JSON error body.
const (
	codeLedgerUnavailable = "ledger_unavailable"
	codeStoreUnavailable  = "store_unavailable"
	codeMalformedReading  = "malformed_reading"
	codeNotFound          = "not_found"
	codeBadRequest        = "bad_request"
	codeInternalError     = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type entryItem struct {
	Principal string  `json:"principal"`
	GiB       float64 `json:"gib"`
}

type reportResponse struct {
	Operation string      `json:"operation"`
	Items     []entryItem `json:"items"`
	Count     int         `json:"count"`
}

type snapshotItem struct {
	Principal   string  `json:"principal"`
	PreviousGiB float64 `json:"previous_gib"`
	CurrentGiB  float64 `json:"current_gib"`
}

type snapshotListResponse struct {
	Items []snapshotItem `json:"items"`
	Count int            `json:"count"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server exposes the accounting engine over HTTP.
type Server struct {
	reports   Reporter
	snapshots SnapshotReader
	health    HealthChecker
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(reports Reporter, snapshots SnapshotReader, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		reports:   reports,
		snapshots: snapshots,
		health:    health,
		logger:    logger,
	}
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chirouter.Router) {
	r.Route("/api/v1", func(r chirouter.Router) {
		r.Post("/reports/consumption", s.ConsumptionReport)
		r.Post("/reports/rebaseline", s.RebaselineReport)
		r.Get("/snapshots", s.ListSnapshots)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// ConsumptionReport handles POST /api/v1/reports/consumption. It runs one
// consumption cycle: deltas since the last cycle, baseline advanced.
func (s *Server) ConsumptionReport(w http.ResponseWriter, r *http.Request) {
	entries, err := s.reports.ConsumptionReport(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse("consumption", entries))
}

// RebaselineReport handles POST /api/v1/reports/rebaseline. It replaces the
// whole snapshot set with the current ledger totals.
func (s *Server) RebaselineReport(w http.ResponseWriter, r *http.Request) {
	entries, err := s.reports.RebaselineReport(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse("rebaseline", entries))
}

// ListSnapshots handles GET /api/v1/snapshots.
func (s *Server) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.snapshots.GetAll(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]snapshotItem, 0, len(snapshots))
	for principal, snap := range snapshots {
		items = append(items, snapshotItem{
			Principal:   principal,
			PreviousGiB: snap.PreviousGiB(),
			CurrentGiB:  snap.CurrentGiB(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Principal < items[j].Principal })

	writeJSON(w, http.StatusOK, snapshotListResponse{Items: items, Count: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func reportToResponse(operation string, entries []domusage.Entry) reportResponse {
	items := make([]entryItem, len(entries))
	for i, e := range entries {
		items[i] = entryItem{Principal: e.Principal(), GiB: e.ValueGiB()}
	}
	return reportResponse{Operation: operation, Items: items, Count: len(items)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrLedgerUnavailable,
		domain.ErrStoreUnavailable,
		domain.ErrMalformedReading,
		domain.ErrNotFound,
		domain.ErrInvalidInput,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)

	switch {
	case errors.Is(err, domain.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeLedgerUnavailable, msg)
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, msg)
	case errors.Is(err, domain.ErrMalformedReading):
		writeError(w, http.StatusBadGateway, codeMalformedReading, msg)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, msg)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeBadRequest, msg)
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
