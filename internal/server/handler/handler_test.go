package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/cache/local"
	"github.com/alanyoungcy/btcbasis/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) ComputeCostBasis(ctx context.Context, tenantID string, id uuid.UUID) (*domain.CostBasisResult, error) {
	args := m.Called(ctx, tenantID, id)
	res, _ := args.Get(0).(*domain.CostBasisResult)
	return res, args.Error(1)
}

func (m *mockEngine) ProcessDisposal(ctx context.Context, tenantID string, id uuid.UUID) (*domain.CostBasisResult, error) {
	args := m.Called(ctx, tenantID, id)
	res, _ := args.Get(0).(*domain.CostBasisResult)
	return res, args.Error(1)
}

func (m *mockEngine) Allocations(ctx context.Context, tenantID string, id uuid.UUID) ([]domain.AllocationRecord, error) {
	args := m.Called(ctx, tenantID, id)
	res, _ := args.Get(0).([]domain.AllocationRecord)
	return res, args.Error(1)
}

type mockGains struct{ mock.Mock }

func (m *mockGains) RealizedGain(ctx context.Context, tenantID string, id uuid.UUID) (*domain.RealizedGain, error) {
	args := m.Called(ctx, tenantID, id)
	res, _ := args.Get(0).(*domain.RealizedGain)
	return res, args.Error(1)
}

type mockRates struct{ mock.Mock }

func (m *mockRates) GetObservation(ctx context.Context, date time.Time) (domain.RateObservation, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(domain.RateObservation), args.Error(1)
}

func (m *mockRates) BatchGetRates(ctx context.Context, dates []time.Time) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, dates)
	res, _ := args.Get(0).(map[string]decimal.Decimal)
	return res, args.Error(1)
}

func serve(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w: %w", domain.ErrUpstreamFetch, domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", domain.ErrUpstreamFetch), http.StatusBadGateway},
		{fmt.Errorf("x: %w", domain.ErrConflict), http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCostBasisHandler_Preview(t *testing.T) {
	id := uuid.New()
	engine := &mockEngine{}
	engine.On("ComputeCostBasis", mock.Anything, "acme", id).Return(&domain.CostBasisResult{
		DisposalID:        id,
		TotalCostBasisUSD: decimal.RequireFromString("12333.33"),
		AmountMatched:     decimal.RequireFromString("0.6"),
		AmountRequested:   decimal.RequireFromString("0.6"),
	}, nil).Once()
	h := NewCostBasisHandler(engine, &mockGains{}, discardLogger())

	rec := serve(t, "GET /api/tenants/{tenant}/disposals/{id}/cost-basis", h.Preview,
		http.MethodGet, "/api/tenants/acme/disposals/"+id.String()+"/cost-basis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "12333.33", body["total_cost_basis_usd"])
	assert.Equal(t, false, body["insufficient_quantity"])
	engine.AssertExpectations(t)
}

func TestCostBasisHandler_Errors(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		target string
		setup  func(*mockEngine)
		want   int
	}{
		{
			name:   "bad id",
			target: "/api/tenants/acme/disposals/not-a-uuid/allocations",
			setup:  func(*mockEngine) {},
			want:   http.StatusBadRequest,
		},
		{
			name:   "not a disposal",
			target: "/api/tenants/acme/disposals/" + id.String() + "/allocations",
			setup: func(m *mockEngine) {
				m.On("ProcessDisposal", mock.Anything, "acme", id).Return(nil, nil).Once()
			},
			want: http.StatusNotFound,
		},
		{
			name:   "conflict",
			target: "/api/tenants/acme/disposals/" + id.String() + "/allocations",
			setup: func(m *mockEngine) {
				m.On("ProcessDisposal", mock.Anything, "acme", id).Return(nil, fmt.Errorf("commit: %w", domain.ErrConflict)).Once()
			},
			want: http.StatusConflict,
		},
		{
			name:   "store down",
			target: "/api/tenants/acme/disposals/" + id.String() + "/allocations",
			setup: func(m *mockEngine) {
				m.On("ProcessDisposal", mock.Anything, "acme", id).Return(nil, errors.New("connection refused")).Once()
			},
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{}
			tt.setup(engine)
			h := NewCostBasisHandler(engine, &mockGains{}, discardLogger())

			rec := serve(t, "POST /api/tenants/{tenant}/disposals/{id}/allocations", h.Commit, http.MethodPost, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, decodeBody(t, rec), "error")
			engine.AssertExpectations(t)
		})
	}
}

func TestCostBasisHandler_ListAllocationsEmpty(t *testing.T) {
	id := uuid.New()
	engine := &mockEngine{}
	engine.On("Allocations", mock.Anything, "acme", id).Return(nil, nil).Once()
	h := NewCostBasisHandler(engine, &mockGains{}, discardLogger())

	rec := serve(t, "GET /api/tenants/{tenant}/disposals/{id}/allocations", h.ListAllocations,
		http.MethodGet, "/api/tenants/acme/disposals/"+id.String()+"/allocations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["allocations"])
}

func TestCostBasisHandler_GainUpstreamFailure(t *testing.T) {
	id := uuid.New()
	gains := &mockGains{}
	gains.On("RealizedGain", mock.Anything, "acme", id).Return(nil, fmt.Errorf("rate: %w", domain.ErrUpstreamFetch)).Once()
	h := NewCostBasisHandler(&mockEngine{}, gains, discardLogger())

	rec := serve(t, "GET /api/tenants/{tenant}/disposals/{id}/gain", h.Gain,
		http.MethodGet, "/api/tenants/acme/disposals/"+id.String()+"/gain", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRatesHandler_GetRate(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rates := &mockRates{}
	rates.On("GetObservation", mock.Anything, day).Return(domain.RateObservation{
		Provider: "primary", Currency: "USD", Date: day, Rate: decimal.RequireFromString("42280.23"),
	}, nil).Once()
	h := NewRatesHandler(rates, discardLogger())

	rec := serve(t, "GET /api/rates/{date}", h.GetRate, http.MethodGet, "/api/rates/2024-01-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42280.23", decodeBody(t, rec)["rate"])

	rec = serve(t, "GET /api/rates/{date}", h.GetRate, http.MethodGet, "/api/rates/01-01-2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rates.AssertExpectations(t)
}

func TestRatesHandler_Batch(t *testing.T) {
	rates := &mockRates{}
	rates.On("BatchGetRates", mock.Anything, mock.MatchedBy(func(d []time.Time) bool { return len(d) == 3 })).
		Return(map[string]decimal.Decimal{"2024-01-01": decimal.RequireFromString("42280.23")}, nil).Once()
	h := NewRatesHandler(rates, discardLogger())

	rec := serve(t, "POST /api/rates/batch", h.Batch, http.MethodPost, "/api/rates/batch",
		`{"dates":["2024-01-01","2024-01-02","2024-01-02"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"2024-01-02"}, body["missing"])
	assert.Equal(t, map[string]any{"2024-01-01": "42280.23"}, body["rates"])

	for _, bad := range []string{`{"dates":[]}`, `{"dates":["2024-13-01"]}`, `{"days":["2024-01-01"]}`, `not json`} {
		rec = serve(t, "POST /api/rates/batch", h.Batch, http.MethodPost, "/api/rates/batch", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	rates.AssertExpectations(t)
}

func TestRatesHandler_BatchCap(t *testing.T) {
	rates := &mockRates{}
	rates.On("BatchGetRates", mock.Anything, mock.MatchedBy(func(d []time.Time) bool { return len(d) == maxBatchDates })).
		Return(map[string]decimal.Decimal{}, nil).Once()
	h := NewRatesHandler(rates, discardLogger())

	body := func(n int) string {
		dates := make([]string, n)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range dates {
			dates[i] = domain.DayKey(start.AddDate(0, 0, i))
		}
		b, err := json.Marshal(map[string][]string{"dates": dates})
		require.NoError(t, err)
		return string(b)
	}

	rec := serve(t, "POST /api/rates/batch", h.Batch, http.MethodPost, "/api/rates/batch", body(maxBatchDates))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, "POST /api/rates/batch", h.Batch, http.MethodPost, "/api/rates/batch", body(maxBatchDates+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "between 1 and 31 entries")
	rates.AssertExpectations(t)
}

func TestEventsHandler_Allocations(t *testing.T) {
	bus := local.NewSignalBus()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamAllocations, []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}
	h := NewEventsHandler(bus, discardLogger())

	rec := serve(t, "GET /api/events/allocations", h.Allocations, http.MethodGet, "/api/events/allocations?count=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []domain.StreamMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)

	rec = serve(t, "GET /api/events/allocations", h.Allocations, http.MethodGet,
		"/api/events/allocations?after="+body.Events[1].ID, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.JSONEq(t, `{"n":2}`, string(body.Events[0].Payload))
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
	}, discardLogger())
	rec := serve(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewHealthHandler(map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}, discardLogger())
	rec = serve(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "up", "redis": "down"}, body["dependencies"])
}
