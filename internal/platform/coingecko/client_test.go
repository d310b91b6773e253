package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

func TestSpotPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "demo", r.URL.Query().Get("x_cg_demo_api_key"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":67321.5}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, WithAPIKey("demo"))
	price, err := c.SpotPrice(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, "67321.5", price.String())
}

func TestHistoricalPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/history", r.URL.Path)
		assert.Equal(t, "09-03-2024", r.URL.Query().Get("date"))
		assert.Equal(t, "false", r.URL.Query().Get("localization"))
		assert.Empty(t, r.URL.Query().Get("x_cg_demo_api_key"))
		_, _ = w.Write([]byte(`{"id":"bitcoin","market_data":{"current_price":{"usd":68500.12,"eur":63000}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	price, err := c.HistoricalPrice(context.Background(), time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC), "USD")
	require.NoError(t, err)
	assert.Equal(t, "68500.12", price.String())
}

func TestPriceErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"status":{"error_code":429}}`},
		{name: "malformed json", status: http.StatusOK, body: `{"market_data":`},
		{name: "non numeric", status: http.StatusOK, body: `{"market_data":{"current_price":{"usd":"n/a"}}}`},
		{name: "missing currency", status: http.StatusOK, body: `{"market_data":{"current_price":{"eur":1}}}`},
		{name: "zero price", status: http.StatusOK, body: `{"market_data":{"current_price":{"usd":0}}}`},
		{name: "null price", status: http.StatusOK, body: `{"market_data":{"current_price":{"usd":null}}}`},
		{name: "no market data", status: http.StatusOK, body: `{"id":"bitcoin"}`, notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			_, err := c.HistoricalPrice(context.Background(), time.Now().AddDate(0, 0, -3), "usd")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	_, err := c.SpotPrice(context.Background(), "usd")
	assert.Error(t, err)
}
