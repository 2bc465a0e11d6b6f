package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// SNSNotifier delivers SMS stages via AWS SNS.
type SNSNotifier struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSNotifier creates an SNS notifier for SMS stages.
func NewSNSNotifier(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSNotifier{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send publishes an SMS payload. A missing phone number is permanent;
// publish failures are transient.
func (s *SNSNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	if payload.Channel != ChannelSMS {
		return campaign.Permanent(fmt.Errorf("sns notifier only supports sms, got %q", payload.Channel))
	}
	if payload.To == "" {
		return campaign.Permanent(fmt.Errorf("subject %s has no phone number", sub.ID))
	}
	if payload.Body == "" {
		return campaign.Permanent(fmt.Errorf("rendered sms for stage %s is empty", stage.Name))
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(payload.To),
		Message:     aws.String(payload.Body),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return campaign.Transient(fmt.Errorf("sns publish failed: %w", err))
	}

	s.logger.Info("SMS sent via SNS",
		zap.String("subject_id", sub.ID.String()),
		zap.String("stage", stage.Name),
		zap.String("phone_number", payload.To),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (s *SNSNotifier) SupportsChannel(channel string) bool {
	return channel == ChannelSMS
}
