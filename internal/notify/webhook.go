package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// WebhookNotifier POSTs rendered payloads to an operator-configured
// endpoint (e.g. a back-office integration that wants stage events).
type WebhookNotifier struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// webhookBody is the JSON document delivered to the endpoint.
type webhookBody struct {
	SubjectID    string `json:"subject_id"`
	CampaignType string `json:"campaign_type"`
	Stage        string `json:"stage"`
	To           string `json:"to"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body"`
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(logger *zap.Logger, cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// Send POSTs the payload. Non-2xx and network errors are transient;
// a missing endpoint configuration is permanent.
func (s *WebhookNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	if payload.Channel != ChannelWebhook {
		return campaign.Permanent(fmt.Errorf("webhook notifier only supports webhooks, got %q", payload.Channel))
	}
	if s.url == "" {
		return campaign.Permanent(fmt.Errorf("webhook endpoint not configured"))
	}

	body, err := json.Marshal(webhookBody{
		SubjectID:    sub.ID.String(),
		CampaignType: sub.CampaignType,
		Stage:        stage.Name,
		To:           payload.To,
		Subject:      payload.Subject,
		Body:         payload.Body,
	})
	if err != nil {
		return campaign.Permanent(fmt.Errorf("failed to marshal webhook body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return campaign.Permanent(fmt.Errorf("failed to create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cadence/1.0")
	req.Header.Set("X-Cadence-Subject-ID", sub.ID.String())
	req.Header.Set("X-Cadence-Stage", stage.Name)

	resp, err := s.client.Do(req)
	if err != nil {
		return campaign.Transient(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return campaign.Transient(fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	s.logger.Info("webhook delivered",
		zap.String("subject_id", sub.ID.String()),
		zap.String("stage", stage.Name),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

func (s *WebhookNotifier) SupportsChannel(channel string) bool {
	return channel == ChannelWebhook
}
