package handler

import (
	"net/http"

	"github.com/malipo/malipo-backend/internal/payroll/service"
	"github.com/malipo/malipo-backend/pkg/httputil"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// AuditHandler serves the payroll audit trail
type AuditHandler struct {
	service *service.PayrollService
	logger  *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(svc *service.PayrollService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  log,
	}
}

// List lists audit entries newest first
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.ParsePagination(r)

	entries, total, err := h.service.ListAudit(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list payroll audit entries")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, httputil.PageMeta(page, perPage, total))
}
