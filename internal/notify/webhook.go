package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts Slack-compatible block messages to a single incoming-webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Name() string { return "webhook" }

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackPayload(n Notification) slackPayload {
	header := n.Title
	if n.Numero != "" {
		header = fmt.Sprintf("%s: %s", n.Title, n.Numero)
	}
	return slackPayload{
		Text: header,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: n.Message}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: "*Tipo:*\n" + n.Type.Label()},
				{Type: "mrkdwn", Text: "*Prioridade:*\n" + string(n.Priority)},
			}},
		},
	}
}

func (w *Webhook) Send(ctx context.Context, n Notification) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(buildSlackPayload(n))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
