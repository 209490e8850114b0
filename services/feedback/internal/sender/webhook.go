package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/utafrali/FeedbackGo/pkg/httpclient"
)

type jsonPoster interface {
	PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error)
}

// WebhookAlertSender posts alerts as JSON to an HTTP endpoint, e.g. a chat
// incoming webhook.
type WebhookAlertSender struct {
	client jsonPoster
	url    string
}

// NewWebhookAlertSender creates a webhook alert sender. The client carries
// retries, rate limiting and the circuit breaker.
func NewWebhookAlertSender(client *httpclient.CircuitBreakerClient, url string) *WebhookAlertSender {
	return &WebhookAlertSender{client: client, url: url}
}

func (s *WebhookAlertSender) Name() string { return "webhook" }

type webhookPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (s *WebhookAlertSender) SendAlert(ctx context.Context, subject, text string) error {
	body, err := json.Marshal(webhookPayload{Subject: subject, Text: subject + "\n\n" + text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	resp, err := s.client.PostJSON(ctx, s.url, body)
	if err != nil {
		return fmt.Errorf("post webhook alert: %w", err)
	}
	if err := httpclient.CheckResponse(resp, "alert webhook"); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
