package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/internal/payroll/service"
	"github.com/malipo/malipo-backend/pkg/httputil"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// RunHandler handles payroll run endpoints
type RunHandler struct {
	service *service.PayrollService
	logger  *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(svc *service.PayrollService, log *logger.Logger) *RunHandler {
	return &RunHandler{
		service: svc,
		logger:  log,
	}
}

// CalculateRunRequest selects the pay period to calculate
type CalculateRunRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
}

// Calculate computes the draft run for a period
func (h *RunHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	run, err := h.service.CalculateRun(r.Context(), domain.Period{Month: req.Month, Year: req.Year})
	if err != nil {
		h.logger.Error().Err(err).Int("year", req.Year).Int("month", req.Month).Msg("failed to calculate payroll run")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, run)
}

// Complete finalizes a draft run
func (h *RunHandler) Complete(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.service.CompleteRun(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to complete payroll run")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, run)
}

// Cancel abandons a draft run
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.service.CancelRun(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to cancel payroll run")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, run)
}

// List lists payroll runs, optionally filtered by year and status
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.ParsePagination(r)

	filter := repository.ListRunsFilter{
		Status: r.URL.Query().Get("status"),
	}
	if year := r.URL.Query().Get("year"); year != "" {
		filter.Year, _ = strconv.Atoi(year)
	}

	runs, total, err := h.service.ListRuns(r.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list payroll runs")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, runs, httputil.PageMeta(page, perPage, total))
}

// Get returns a run with its per-employee details
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to get payroll run")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, run)
}
