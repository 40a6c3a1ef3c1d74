// Package slack posts urgent incidents to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

const (
	maxMessageLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends incidents at or above a priority to a Slack webhook.
type Notifier struct {
	webhookURL  string
	minPriority int
	client      *http.Client
	logger      log.Logger
	wg          sync.WaitGroup
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, minPriority int, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL:  webhookURL,
		minPriority: minPriority,
		client:      &http.Client{Timeout: httpTimeout},
		logger:      logger,
	}
}

// Emit implements incident.Emitter. New incidents at or above the minimum
// priority are posted in the background; everything else is ignored.
func (n *Notifier) Emit(ctx context.Context, name string, payload any) {
	if name != incident.EventNewIncident || n.webhookURL == "" {
		return
	}
	inc, ok := payload.(*incident.Incident)
	if !ok || inc.Priority < n.minPriority {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx := context.WithoutCancel(ctx)
		if err := n.Send(ctx, inc); err != nil {
			n.logger.Error(ctx, err, "slack notification failed", "incident_id", inc.ID, "priority", inc.Priority)
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts an incident to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, inc *incident.Incident) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(inc)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(inc *incident.Incident) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(inc),
			{"type": "divider"},
			fieldsBlock(inc),
			{"type": "divider"},
			messageBlock(inc),
			{"type": "divider"},
			contextBlock(inc),
		},
	}
}

func headerBlock(inc *incident.Incident) map[string]any {
	where := inc.Location
	if where == "" {
		where = "unknown location"
	}
	text := fmt.Sprintf("%s P%d %s: %s", priorityEmoji(inc.Priority), inc.Priority, strings.ToUpper(string(inc.Category)), where)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func fieldsBlock(inc *incident.Incident) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", inc.Category),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Priority:* %d", inc.Priority),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %.0f%%", inc.Confidence*100),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Source:* %s", inc.Source),
		},
	}
	if inc.Coordinates != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Coordinates:* %s", inc.Coordinates),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func messageBlock(inc *incident.Incident) map[string]any {
	text := fmt.Sprintf("*Summary*\n%s\n\n*Report*\n%s\n\n*Recommended advisory*\n%s",
		orNone(inc.Summary), orNone(inc.OriginalMessage), orNone(inc.AdvisoryMessage))

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": truncate(text, maxMessageLen),
		},
	}
}

func contextBlock(inc *incident.Incident) map[string]any {
	ts := inc.ReportedAt
	if ts.IsZero() {
		ts = inc.CreatedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("roadwatch • incident %d • %s", inc.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func priorityEmoji(priority int) string {
	switch {
	case priority >= 5:
		return "\U0001f534" // red circle
	case priority == 4:
		return "\U0001f7e0" // orange circle
	case priority == 3:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "_none_"
	}
	return s
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
