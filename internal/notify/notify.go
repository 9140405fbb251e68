// Package notify delivers user-facing notifications raised by the decision
// components. Delivery is best effort: failures are logged and counted but
// never returned to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/metrics"
	"github.com/guardian-card/guardian-core/internal/model"
)

// CodeRestaurantStationary is raised when a user lingers near a restaurant.
const CodeRestaurantStationary = "RESTAURANT_STATIONARY_TOO_LONG"

// TemplateSet maps notification codes to their type and severity.
type TemplateSet map[string]model.Notification

// DefaultTemplates returns the built-in template table.
func DefaultTemplates() TemplateSet {
	return TemplateSet{
		CodeRestaurantStationary: {Type: "behavior", Code: CodeRestaurantStationary, Severity: "warning"},
	}
}

// templateFile is the YAML layout of a template override file.
type templateFile struct {
	Templates map[string]struct {
		Type     string `yaml:"type"`
		Severity string `yaml:"severity"`
	} `yaml:"templates"`
}

// LoadTemplates returns the built-in templates with the entries in the YAML
// file at path laid over them. An empty path returns the defaults.
func LoadTemplates(path string) (TemplateSet, error) {
	set := DefaultTemplates()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: read templates %s", path)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "notify: parse templates %s", path)
	}
	for code, t := range f.Templates {
		if t.Type == "" || t.Severity == "" {
			return nil, eris.Errorf("notify: template %s needs type and severity", code)
		}
		set[code] = model.Notification{Type: t.Type, Code: code, Severity: t.Severity}
	}
	return set, nil
}

// Build returns the notification for code, falling back to a generic info
// notification for unknown codes.
func (t TemplateSet) Build(code string) model.Notification {
	if n, ok := t[code]; ok {
		return n
	}
	return model.Notification{Type: "generic", Code: code, Severity: "info"}
}

// Build looks code up in the built-in templates.
func Build(code string) model.Notification {
	return DefaultTemplates().Build(code)
}

// Event is the delivered payload.
type Event struct {
	UserID       string             `json:"user_id"`
	Notification model.Notification `json:"notification"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// New returns a webhook notifier when a URL is configured, otherwise a log notifier.
func New(cfg config.NotifyConfig) Notifier {
	if cfg.WebhookURL != "" {
		return NewWebhookNotifier(cfg)
	}
	return LogNotifier{}
}

// LogNotifier writes events to the global logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, ev Event) {
	zap.L().Info("notify: notification",
		zap.String("user_id", ev.UserID),
		zap.String("code", ev.Notification.Code),
		zap.String("type", ev.Notification.Type),
		zap.String("severity", ev.Notification.Severity),
	)
	metrics.NotificationsSent.WithLabelValues(ev.Notification.Code, "logged").Inc()
}

// WebhookNotifier posts events as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier. TimeoutSecs defaults to 5.
func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	timeout := 5 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) {
	if err := w.send(ctx, ev); err != nil {
		zap.L().Error("notify: failed to deliver notification",
			zap.String("code", ev.Notification.Code),
			zap.Error(err),
		)
		metrics.NotificationsSent.WithLabelValues(ev.Notification.Code, "failed").Inc()
		return
	}
	zap.L().Info("notify: notification sent",
		zap.String("code", ev.Notification.Code),
		zap.String("severity", ev.Notification.Severity),
	)
	metrics.NotificationsSent.WithLabelValues(ev.Notification.Code, "sent").Inc()
}

func (w *WebhookNotifier) send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
