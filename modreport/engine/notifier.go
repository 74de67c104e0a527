package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Notifier is the outbound channel for moderator-facing escalation alerts.
type Notifier interface {
	SendBurstAlert(ctx context.Context, suspectID string) error
}

// MemNotifier records alerts in memory, for tests.
type MemNotifier struct {
	mu     sync.Mutex
	Alerts []string
}

var _ Notifier = (*MemNotifier)(nil)

func (n *MemNotifier) SendBurstAlert(ctx context.Context, suspectID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Alerts = append(n.Alerts, suspectID)
	return nil
}

func (n *MemNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Alerts))
	copy(out, n.Alerts)
	return out
}

// WebhookNotifier posts alerts to a chat "incoming webhook".
//
// The webhook must already be configured in the receiving workspace.
type WebhookNotifier struct {
	WebhookURL string
}

var _ Notifier = (*WebhookNotifier)(nil)

type webhookBody struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) SendBurstAlert(ctx context.Context, suspectID string) error {
	msg := fmt.Sprintf("⚠️ Communication abuse burst ⚠️\n`%s` crossed the escalation threshold\n", suspectID)
	body, err := json.Marshal(webhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("failed webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
