// Package notify implements delivery channels for the campaign
// scheduler: SES email, SNS SMS, SQS hand-off, webhooks, and a
// development logger, routed by the rendered payload's channel.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// Channel constants used in RenderedPayload.Channel.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
	ChannelQueue   = "queue"
)

// ChannelNotifier is a campaign.Notifier that knows which channels it
// can deliver.
type ChannelNotifier interface {
	campaign.Notifier
	SupportsChannel(channel string) bool
}

// MultiNotifier routes each payload to the first notifier that
// supports its channel.
type MultiNotifier struct {
	notifiers []ChannelNotifier
	logger    *zap.Logger
}

// NewMultiNotifier creates a router over the given channel notifiers.
func NewMultiNotifier(logger *zap.Logger, notifiers ...ChannelNotifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		logger:    logger,
	}
}

// Send routes the payload to the notifier for its channel. A payload
// with no matching channel cannot succeed on retry, so it is permanent.
func (m *MultiNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	for _, n := range m.notifiers {
		if n.SupportsChannel(payload.Channel) {
			m.logger.Debug("routing stage dispatch",
				zap.String("channel", payload.Channel),
				zap.String("subject_id", sub.ID.String()),
				zap.String("stage", stage.Name),
			)
			return n.Send(ctx, sub, stage, payload)
		}
	}
	return campaign.Permanent(fmt.Errorf("no notifier for channel %q", payload.Channel))
}

// SupportsChannel reports whether any underlying notifier handles the
// channel.
func (m *MultiNotifier) SupportsChannel(channel string) bool {
	for _, n := range m.notifiers {
		if n.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogNotifier logs instead of delivering. Development and tests only.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (s *LogNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	s.logger.Info("stage dispatch (development mode)",
		zap.String("subject_id", sub.ID.String()),
		zap.String("campaign", sub.CampaignType),
		zap.String("stage", stage.Name),
		zap.String("channel", payload.Channel),
		zap.String("to", payload.To),
		zap.String("subject", payload.Subject),
	)
	return nil
}

func (s *LogNotifier) SupportsChannel(channel string) bool {
	switch channel {
	case ChannelEmail, ChannelSMS, ChannelWebhook, ChannelQueue:
		return true
	}
	return false
}
