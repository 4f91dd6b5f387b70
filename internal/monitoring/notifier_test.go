package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aozora-lab/poster-cli/internal/config"
)

func TestNotifySummary(t *testing.T) {
	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received.Store(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(config.MonitoringConfig{WebhookURL: srv.URL})
	n.NotifySummary(context.Background(), RunSummary{
		Keyword:    "cosplay",
		Candidates: 20,
		Scheduled:  15,
		Drafted:    3,
		Failed:     1,
		Duplicates: 1,
		SlotsLeft:  33,
		Duration:   90 * time.Second,
	})

	body, ok := received.Load().([]byte)
	require.True(t, ok, "webhook must be called")

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Contains(t, payload["content"], "pass finished for cosplay")
	assert.Contains(t, payload["content"], "scheduled: 15")
	assert.Contains(t, payload["content"], "slots remaining: 33")
}

func TestNotifySummary_DefaultKeywordAndDryRun(t *testing.T) {
	var content atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		content.Store(payload["content"])
	}))
	defer srv.Close()

	n := NewNotifier(config.MonitoringConfig{WebhookURL: srv.URL})
	n.NotifySummary(context.Background(), RunSummary{DryRun: true})

	got, _ := content.Load().(string)
	assert.Contains(t, got, "dry run finished")
	assert.Contains(t, got, "(default search)")
}

func TestNotifyFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewNotifier(config.MonitoringConfig{WebhookURL: srv.URL})
	n.NotifyFailure(context.Background(), "cosplay", assert.AnError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotify_DisabledWithoutURL(t *testing.T) {
	n := NewNotifier(config.MonitoringConfig{})
	// Must be a no-op, not a panic or an outbound call.
	n.NotifySummary(context.Background(), RunSummary{})
	n.NotifyFailure(context.Background(), "", assert.AnError)
}

func TestNotify_WebhookErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(config.MonitoringConfig{WebhookURL: srv.URL})
	n.NotifySummary(context.Background(), RunSummary{Scheduled: 1})
}
