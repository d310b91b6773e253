package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// ReportService exports and lists allocation reports.
type ReportService interface {
	domain.ReportExporter
	ListReports(ctx context.Context, tenantID string) ([]domain.BlobInfo, error)
}

// ExportsHandler serves allocation report exports.
type ExportsHandler struct {
	reports ReportService
	logger  *slog.Logger
}

// NewExportsHandler creates an ExportsHandler.
func NewExportsHandler(reports ReportService, logger *slog.Logger) *ExportsHandler {
	return &ExportsHandler{reports: reports, logger: logger.With(slog.String("handler", "exports"))}
}

type exportRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Export writes the tenant's allocations committed in [from, to).
// POST /api/tenants/{tenant}/exports
func (h *ExportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := domain.ParseDay(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := domain.ParseDay(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	res, err := h.reports.ExportTenant(r.Context(), r.PathValue("tenant"), from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, "export allocations", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// List returns the tenant's stored reports.
// GET /api/tenants/{tenant}/exports
func (h *ExportsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reports.ListReports(r.Context(), r.PathValue("tenant"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list exports", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": infos})
}
