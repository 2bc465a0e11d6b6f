package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// SESNotifier delivers email stages via AWS SES.
type SESNotifier struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESNotifier(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESNotifier{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send delivers an email payload. Missing recipient or content is a
// permanent failure; provider errors are transient and retried on the
// next tick.
func (s *SESNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	if payload.Channel != ChannelEmail {
		return campaign.Permanent(fmt.Errorf("ses notifier only supports email, got %q", payload.Channel))
	}
	if payload.To == "" {
		return campaign.Permanent(fmt.Errorf("subject %s has no email address", sub.ID))
	}
	if payload.Subject == "" || payload.Body == "" {
		return campaign.Permanent(fmt.Errorf("rendered email for stage %s is empty", stage.Name))
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{payload.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(payload.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(payload.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return campaign.Transient(fmt.Errorf("ses send failed: %w", err))
	}

	s.logger.Info("email sent via SES",
		zap.String("subject_id", sub.ID.String()),
		zap.String("stage", stage.Name),
		zap.String("to", payload.To),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (s *SESNotifier) SupportsChannel(channel string) bool {
	return channel == ChannelEmail
}
