package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// CostBasisService is the part of the cost-basis engine the handler needs.
type CostBasisService interface {
	ComputeCostBasis(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.CostBasisResult, error)
	ProcessDisposal(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.CostBasisResult, error)
	Allocations(ctx context.Context, tenantID string, disposalID uuid.UUID) ([]domain.AllocationRecord, error)
}

// GainService prices a disposal.
type GainService interface {
	RealizedGain(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.RealizedGain, error)
}

// CostBasisHandler serves the per-disposal endpoints.
type CostBasisHandler struct {
	engine CostBasisService
	gains  GainService
	logger *slog.Logger
}

// NewCostBasisHandler creates a CostBasisHandler.
func NewCostBasisHandler(engine CostBasisService, gains GainService, logger *slog.Logger) *CostBasisHandler {
	return &CostBasisHandler{
		engine: engine,
		gains:  gains,
		logger: logger.With(slog.String("handler", "cost_basis")),
	}
}

const notADisposal = "transaction not found or not a disposal"

// Preview returns the FIFO allocation without committing it.
// GET /api/tenants/{tenant}/disposals/{id}/cost-basis
func (h *CostBasisHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tenant, id, err := disposalParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engine.ComputeCostBasis(r.Context(), tenant, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "compute cost basis", err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, notADisposal)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Commit computes and commits the allocation. Repeating it returns the
// existing trail.
// POST /api/tenants/{tenant}/disposals/{id}/allocations
func (h *CostBasisHandler) Commit(w http.ResponseWriter, r *http.Request) {
	tenant, id, err := disposalParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engine.ProcessDisposal(r.Context(), tenant, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "commit allocation", err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, notADisposal)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type allocationsResponse struct {
	DisposalID  uuid.UUID                 `json:"disposal_id"`
	Allocations []domain.AllocationRecord `json:"allocations"`
}

// ListAllocations returns the committed trail.
// GET /api/tenants/{tenant}/disposals/{id}/allocations
func (h *CostBasisHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	tenant, id, err := disposalParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.engine.Allocations(r.Context(), tenant, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list allocations", err)
		return
	}
	if records == nil {
		records = []domain.AllocationRecord{}
	}
	writeJSON(w, http.StatusOK, allocationsResponse{DisposalID: id, Allocations: records})
}

// Gain returns the realized gain of the disposal.
// GET /api/tenants/{tenant}/disposals/{id}/gain
func (h *CostBasisHandler) Gain(w http.ResponseWriter, r *http.Request) {
	tenant, id, err := disposalParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := h.gains.RealizedGain(r.Context(), tenant, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "realized gain", err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, notADisposal)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
