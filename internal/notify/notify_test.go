package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/data/memstore"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/httputil"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

var dateRef = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func sampleSignals() []contracts.ConditionalSignal {
	validFor := dateRef.AddDate(0, 0, 1)
	return []contracts.ConditionalSignal{
		{DateRef: dateRef, ValidFor: validFor, Ticker: "AAA", Side: contracts.SideBuy, Entry: 9.8, Target: 10.486, Stop: 9.114, Rank: 1},
		{DateRef: dateRef, ValidFor: validFor, Ticker: "BBB", Side: contracts.SideSell, Entry: 20.4, Target: 18.972, Stop: 21.828, Rank: 2},
	}
}

type recordingSender struct {
	enabled bool
	err     error
	sent    []string
}

func (r *recordingSender) Enabled() bool { return r.enabled }

func (r *recordingSender) Send(ctx context.Context, text string) error {
	if !r.enabled {
		return ErrDisabled
	}
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

func TestFormatSignals(t *testing.T) {
	msg := FormatSignals(dateRef, sampleSignals())
	assert.Equal(t,
		"Sinais 2024-01-02\n"+
			"1. AAA BUY entry 9.8000 target 10.4860 stop 9.1140 valid 2024-01-03\n"+
			"2. BBB SELL entry 20.4000 target 18.9720 stop 21.8280 valid 2024-01-03",
		msg)
}

func TestAlerter(t *testing.T) {
	ctx := context.Background()

	t.Run("sends", func(t *testing.T) {
		store := memstore.New()
		require.NoError(t, store.ReplaceSignals(ctx, dateRef, sampleSignals(), contracts.RunMetadata{}))
		sender := &recordingSender{enabled: true}

		res, err := NewAlerter(store, sender, monitoring.New(), logger.Nop(), nil).Run(ctx, dateRef)
		require.NoError(t, err)
		assert.True(t, res.Sent)
		assert.Equal(t, 2, res.Signals)
		require.Len(t, sender.sent, 1)
		assert.Contains(t, sender.sent[0], "Sinais 2024-01-02")
	})

	t.Run("no signals sends nothing", func(t *testing.T) {
		sender := &recordingSender{enabled: true}
		res, err := NewAlerter(memstore.New(), sender, monitoring.New(), logger.Nop(), nil).Run(ctx, dateRef)
		require.NoError(t, err)
		assert.False(t, res.Sent)
		assert.Equal(t, "No signals for 2024-01-02", res.Message)
		assert.Empty(t, sender.sent)
	})

	t.Run("disabled is not an error", func(t *testing.T) {
		store := memstore.New()
		require.NoError(t, store.ReplaceSignals(ctx, dateRef, sampleSignals(), contracts.RunMetadata{}))
		res, err := NewAlerter(store, &recordingSender{}, monitoring.New(), logger.Nop(), nil).Run(ctx, dateRef)
		require.NoError(t, err)
		assert.False(t, res.Sent)
	})

	t.Run("send failure", func(t *testing.T) {
		store := memstore.New()
		require.NoError(t, store.ReplaceSignals(ctx, dateRef, sampleSignals(), contracts.RunMetadata{}))
		sender := &recordingSender{enabled: true, err: errors.New("chat not found")}
		_, err := NewAlerter(store, sender, monitoring.New(), logger.Nop(), nil).Run(ctx, dateRef)
		assert.EqualError(t, err, "chat not found")
	})
}

func newTelegram(t *testing.T, handler http.HandlerFunc, enabled bool) *Telegram {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	client := httputil.New(cfg, logger.Nop()).WithRetry(0, 0)
	return NewTelegram(config.TelegramConfig{
		BotToken: "123456:abc",
		ChatID:   "42",
		Enabled:  enabled,
		BaseURL:  srv.URL,
	}, client, logger.Nop())
}

func TestTelegram_Send(t *testing.T) {
	var got telegramMessage
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123456:abc/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}, true)

	require.True(t, tg.Enabled())
	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "hello", got.Text)
}

func TestTelegram_APIError(t *testing.T) {
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}, true)

	err := tg.Send(context.Background(), "hello")
	assert.ErrorContains(t, err, "chat not found")
}

func TestTelegram_Disabled(t *testing.T) {
	tg := newTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled notifier must not call the API")
	}, false)

	assert.False(t, tg.Enabled())
	assert.ErrorIs(t, tg.Send(context.Background(), "hello"), ErrDisabled)
}

type eventSink struct {
	mu     sync.Mutex
	events []logger.RunEvent
}

func (s *eventSink) Publish(event logger.RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func TestTelegram_TransportErrorHidesToken(t *testing.T) {
	const token = "SECRET123:TOKEN"

	// a closed server gives a refused connection on a known address
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	var logs bytes.Buffer
	log := logger.NewWithWriter(&logs, "debug")
	client := httputil.New(&config.Config{}, log).WithRetry(0, 0)
	tg := NewTelegram(config.TelegramConfig{
		BotToken: token,
		ChatID:   "42",
		Enabled:  true,
		BaseURL:  baseURL,
	}, client, log)

	store := memstore.New()
	require.NoError(t, store.ReplaceSignals(context.Background(), dateRef, sampleSignals(), contracts.RunMetadata{}))
	sink := &eventSink{}

	_, err := NewAlerter(store, tg, monitoring.New(), log, sink).Run(context.Background(), dateRef)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), token)
	assert.Contains(t, err.Error(), "/bot<redacted>/sendMessage")

	assert.NotContains(t, logs.String(), token)
	assert.Contains(t, logs.String(), "HTTP request failed")

	require.NotEmpty(t, sink.events)
	for _, event := range sink.events {
		assert.NotContains(t, event.Error, token)
		assert.NotContains(t, event.Message, token)
	}
}
