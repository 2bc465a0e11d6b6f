package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// QueueNotifier hands rendered payloads to an SQS queue for a
// downstream delivery worker instead of calling a provider directly.
// Enqueue success counts as dispatch success for the scheduler; the
// queue's own redelivery takes over from there.
type QueueNotifier struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

type QueueConfig struct {
	Region   string
	QueueURL string
}

// QueueMessage is the body placed on the delivery queue.
type QueueMessage struct {
	SubjectID    string `json:"subject_id"`
	CampaignType string `json:"campaign_type"`
	Stage        string `json:"stage"`
	StageIndex   int    `json:"stage_index"`
	Channel      string `json:"channel"`
	To           string `json:"to"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body"`
	EnqueuedAt   int64  `json:"enqueued_at"`
}

// NewQueueNotifier creates an SQS-backed notifier.
func NewQueueNotifier(ctx context.Context, cfg QueueConfig, logger *zap.Logger) (*QueueNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("delivery queue notifier initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &QueueNotifier{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Send enqueues the rendered payload.
func (p *QueueNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	if payload.Channel != ChannelQueue {
		return campaign.Permanent(fmt.Errorf("queue notifier only supports queue hand-off, got %q", payload.Channel))
	}

	msg := QueueMessage{
		SubjectID:    sub.ID.String(),
		CampaignType: sub.CampaignType,
		Stage:        stage.Name,
		StageIndex:   stage.Index,
		Channel:      payload.Channel,
		To:           payload.To,
		Subject:      payload.Subject,
		Body:         payload.Body,
		EnqueuedAt:   time.Now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return campaign.Permanent(fmt.Errorf("failed to marshal queue message: %w", err))
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return campaign.Transient(fmt.Errorf("sqs send failed: %w", err))
	}

	p.logger.Info("stage handed to delivery queue",
		zap.String("subject_id", sub.ID.String()),
		zap.String("stage", stage.Name),
		zap.String("message_id", *result.MessageId),
	)
	return nil
}

func (p *QueueNotifier) SupportsChannel(channel string) bool {
	return channel == ChannelQueue
}
