package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

type mockSender struct {
	mock.Mock
	name string
}

func (m *mockSender) Send(ctx context.Context, title, message string) error {
	args := m.Called(ctx, title, message)
	return args.Error(0)
}

func (m *mockSender) Name() string { return m.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &mockSender{name: "m"}
	s.On("Send", mock.Anything, "t", "m").Return(nil).Once()

	n := NewNotifier([]Sender{s}, []string{EventInsufficientInventory, " "}, discardLogger())
	require.NoError(t, n.Notify(context.Background(), EventRateFetchFailed, "t", "m"))
	require.NoError(t, n.Notify(context.Background(), EventInsufficientInventory, "t", "m"))

	s.AssertExpectations(t)
	assert.False(t, n.Enabled(EventRateFetchFailed))
}

func TestNotifier_CollectsSenderFailures(t *testing.T) {
	bad := &mockSender{name: "bad"}
	good := &mockSender{name: "good"}
	bad.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))
	good.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())
	err := n.Notify(context.Background(), "anything", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	good.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.False(t, n.Enabled(EventRateFetchFailed))
	assert.NoError(t, n.Notify(context.Background(), EventRateFetchFailed, "t", "m"))
}

func TestSenders_PostJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramSender("TOKEN", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer failing.Close()
	err := NewDiscordSender(failing.URL).Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "$12,333.33", FormatUSD(1_233_333))

	r := &domain.CostBasisResult{
		DisposalID:        uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		AmountRequested:   decimal.NewFromInt(2),
		AmountMatched:     decimal.NewFromInt(1),
		TotalCostBasisUSD: decimal.NewFromInt(22000),
	}
	title, msg := InsufficientInventory("acme", r)
	assert.Equal(t, "Insufficient BTC inventory", title)
	assert.Contains(t, msg, "short 1.00000000 BTC")
	assert.Contains(t, msg, "$22,000.00")
}
