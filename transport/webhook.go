package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vocdoni/wispy/log"
)

// Webhook posts every message as JSON to an endpoint. The endpoint may
// answer with {"id": "..."} to assign the message id; otherwise the relay
// message id is used.
type Webhook struct {
	URL     string
	Timeout time.Duration
}

// WebhookMessage is the body posted by Webhook.
type WebhookMessage struct {
	GroupID  string            `json:"groupId"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Name implements Transport.
func (w *Webhook) Name() string { return "webhook" }

// Deliver implements Transport.
func (w *Webhook) Deliver(ctx context.Context, groupID, content string, metadata map[string]string) (string, error) {
	payload, err := json.Marshal(WebhookMessage{GroupID: groupID, Content: content, Metadata: metadata})
	if err != nil {
		return "", failed(w.Name(), err)
	}
	client := &http.Client{Timeout: w.timeout()}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return "", failed(w.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return "", failed(w.Name(), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing response body", "error", err.Error())
		}
	}()
	if resp.StatusCode >= 400 {
		return "", failed(w.Name(), fmt.Errorf("remote error, status %d", resp.StatusCode))
	}
	var answer struct {
		ID string `json:"id"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &answer); err != nil {
			log.Debugw("webhook answer is not json", "error", err.Error())
		}
	}
	if answer.ID == "" {
		answer.ID = metadata[MetaMessageID]
	}
	return answer.ID, nil
}

func (w *Webhook) timeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return DefaultTimeout
}
