package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// maxBatchDates bounds one batch request to a month of days. At the default
// provider interval of 1.2s a fully cold batch finishes inside the server's
// 60s write timeout.
const maxBatchDates = 31

// RateService is the part of the exchange-rate service the handler needs.
type RateService interface {
	GetObservation(ctx context.Context, date time.Time) (domain.RateObservation, error)
	BatchGetRates(ctx context.Context, dates []time.Time) (map[string]decimal.Decimal, error)
}

// RatesHandler serves exchange-rate lookups.
type RatesHandler struct {
	rates  RateService
	logger *slog.Logger
}

// NewRatesHandler creates a RatesHandler.
func NewRatesHandler(rates RateService, logger *slog.Logger) *RatesHandler {
	return &RatesHandler{rates: rates, logger: logger.With(slog.String("handler", "rates"))}
}

// GetRate returns the observation for one UTC day.
// GET /api/rates/{date}
func (h *RatesHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	day, err := domain.ParseDay(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	obs, err := h.rates.GetObservation(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, h.logger, "get rate", err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

type batchRequest struct {
	Dates []string `json:"dates"`
}

type batchResponse struct {
	Rates   map[string]decimal.Decimal `json:"rates"`
	Missing []string                   `json:"missing"`
}

// Batch resolves several days. Days that could not be fetched are listed in
// missing rather than failing the request.
// POST /api/rates/batch
func (h *RatesHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Dates) == 0 || len(req.Dates) > maxBatchDates {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("dates must hold between 1 and %d entries", maxBatchDates))
		return
	}

	days := make([]time.Time, 0, len(req.Dates))
	for _, s := range req.Dates {
		d, err := domain.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date "+s)
			return
		}
		days = append(days, d)
	}

	rates, err := h.rates.BatchGetRates(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, h.logger, "batch rates", err)
		return
	}

	missing := []string{}
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		k := domain.DayKey(d)
		if _, ok := rates[k]; !ok && !seen[k] {
			missing = append(missing, k)
		}
		seen[k] = true
	}
	writeJSON(w, http.StatusOK, batchResponse{Rates: rates, Missing: missing})
}
