// Package notify posts run summaries to a configured webhook. Delivery is
// fire-and-forget: a failed or slow webhook never affects the run outcome.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"phasegate/pkg/logx"
	"phasegate/pkg/orch"
)

const deliveryTimeout = 10 * time.Second

// Webhook sends run summaries as JSON POSTs.
type Webhook struct {
	url    string
	client *http.Client
	logger *logx.Logger
	// done signals each completed delivery attempt, for tests.
	done chan struct{}
}

// NewWebhook creates a webhook notifier. An empty URL yields a notifier
// that silently drops everything.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: deliveryTimeout},
		logger: logx.NewLogger("notify"),
		done:   make(chan struct{}, 16),
	}
}

// payload is the chat-webhook shaped message body.
type payload struct {
	Text    string           `json:"text"`
	Summary *orch.RunSummary `json:"summary"`
}

// RunCompleted implements orch.Notifier. Delivery happens on a goroutine.
func (w *Webhook) RunCompleted(summary *orch.RunSummary) {
	if w.url == "" {
		return
	}
	go func() {
		defer func() {
			select {
			case w.done <- struct{}{}:
			default:
			}
		}()
		if err := w.deliver(summary); err != nil {
			w.logger.Warn("webhook delivery failed (ignored): %v", err)
		}
	}()
}

func (w *Webhook) deliver(summary *orch.RunSummary) error {
	body, err := json.Marshal(payload{Text: headline(summary), Summary: summary})
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Flush waits for one pending delivery, for tests.
func (w *Webhook) Flush(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func headline(summary *orch.RunSummary) string {
	verdict := "PASSED"
	if !summary.Success {
		verdict = "FAILED"
	}
	var names []string
	for _, p := range summary.Phases {
		names = append(names, fmt.Sprintf("%s=%s", p.Name, p.Outcome))
	}
	return fmt.Sprintf("phasegate wave %d %s (%s)", summary.Wave, verdict, strings.Join(names, ", "))
}
