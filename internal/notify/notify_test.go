package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
)

func TestBuild(t *testing.T) {
	n := Build(CodeRestaurantStationary)
	assert.Equal(t, model.Notification{Type: "behavior", Code: CodeRestaurantStationary, Severity: "warning"}, n)

	n = Build("SOMETHING_ELSE")
	assert.Equal(t, model.Notification{Type: "generic", Code: "SOMETHING_ELSE", Severity: "info"}, n)
}

func TestLoadTemplates(t *testing.T) {
	set, err := LoadTemplates("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplates(), set)

	path := filepath.Join(t.TempDir(), "templates.yaml")
	body := `
templates:
  RESTAURANT_STATIONARY_TOO_LONG:
    type: nudge
    severity: critical
  LATE_NIGHT_SPEND:
    type: behavior
    severity: info
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	set, err = LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, model.Notification{Type: "nudge", Code: CodeRestaurantStationary, Severity: "critical"}, set.Build(CodeRestaurantStationary))
	assert.Equal(t, model.Notification{Type: "behavior", Code: "LATE_NIGHT_SPEND", Severity: "info"}, set.Build("LATE_NIGHT_SPEND"))
	assert.Equal(t, "generic", set.Build("UNKNOWN").Type)

	// The built-in table is untouched.
	assert.Equal(t, "warning", Build(CodeRestaurantStationary).Severity)
}

func TestLoadTemplates_Errors(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  X:\n    type: behavior\n"), 0o600))
	_, err = LoadTemplates(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs type and severity")
}

func TestNew(t *testing.T) {
	assert.IsType(t, LogNotifier{}, New(config.NotifyConfig{}))
	assert.IsType(t, &WebhookNotifier{}, New(config.NotifyConfig{WebhookURL: "http://example.invalid"}))
}

func TestWebhookNotifier_Posts(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues(CodeRestaurantStationary, "sent"))

	NewWebhookNotifier(config.NotifyConfig{WebhookURL: srv.URL}).Notify(context.Background(), Event{
		UserID:       "u1",
		Notification: Build(CodeRestaurantStationary),
		Timestamp:    ts,
	})

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, CodeRestaurantStationary, got.Notification.Code)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues(CodeRestaurantStationary, "sent")))
}

func TestWebhookNotifier_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("X", "failed"))
	n := NewWebhookNotifier(config.NotifyConfig{WebhookURL: srv.URL, TimeoutSecs: 1})
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Event{UserID: "u1", Notification: Build("X")})
	})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("X", "failed")))
}

func TestWebhookNotifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewWebhookNotifier(config.NotifyConfig{WebhookURL: url})
	assert.Equal(t, 5*time.Second, n.client.Timeout)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Event{UserID: "u1", Notification: Build("X")})
	})
}

func TestLogNotifier(t *testing.T) {
	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("Y", "logged"))
	LogNotifier{}.Notify(context.Background(), Event{UserID: "u1", Notification: Build("Y")})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("Y", "logged")))
}
