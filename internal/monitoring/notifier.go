// Package monitoring sends run notifications to a Discord-compatible
// webhook: a summary when a pass finishes, an alert when it fails. A missing
// webhook URL disables delivery without disabling the call sites.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/config"
)

// RunSummary captures the outcome of one orchestration pass for reporting.
type RunSummary struct {
	Keyword    string
	Candidates int
	Scheduled  int
	Drafted    int
	Failed     int
	Duplicates int
	SlotsLeft  int
	Duration   time.Duration
	DryRun     bool
}

// Notifier delivers run notifications via webhook.
type Notifier struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewNotifier creates a Notifier with the given monitoring config.
func NewNotifier(cfg config.MonitoringConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifySummary posts the pass outcome. Delivery failures are logged, not
// returned: a lost notification must never fail a run.
func (n *Notifier) NotifySummary(ctx context.Context, sum RunSummary) {
	if n.cfg.WebhookURL == "" {
		return
	}
	if err := n.post(ctx, formatSummary(sum)); err != nil {
		zap.L().Error("monitoring: failed to send summary", zap.Error(err))
		return
	}
	zap.L().Info("monitoring: summary sent", zap.Int("scheduled", sum.Scheduled))
}

// NotifyFailure posts an alert for a pass that aborted.
func (n *Notifier) NotifyFailure(ctx context.Context, keyword string, cause error) {
	if n.cfg.WebhookURL == "" {
		return
	}
	msg := fmt.Sprintf(":rotating_light: pass aborted (keyword %q): %v", keyword, cause)
	if err := n.post(ctx, msg); err != nil {
		zap.L().Error("monitoring: failed to send alert", zap.Error(err))
		return
	}
	zap.L().Info("monitoring: alert sent", zap.String("keyword", keyword))
}

func formatSummary(sum RunSummary) string {
	var b strings.Builder
	if sum.DryRun {
		b.WriteString(":test_tube: dry run finished")
	} else {
		b.WriteString(":white_check_mark: pass finished")
	}
	keyword := sum.Keyword
	if keyword == "" {
		keyword = "(default search)"
	}
	fmt.Fprintf(&b, " for %s in %s\n", keyword, sum.Duration.Round(time.Second))
	fmt.Fprintf(&b, "candidates: %d, scheduled: %d, drafted: %d, failed: %d, duplicates: %d\n",
		sum.Candidates, sum.Scheduled, sum.Drafted, sum.Failed, sum.Duplicates)
	fmt.Fprintf(&b, "slots remaining: %d", sum.SlotsLeft)
	return b.String()
}

// post sends a single message to the webhook URL.
func (n *Notifier) post(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
