package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// ProtectedNotifier wraps a campaign.Notifier with a CircuitBreaker.
// An open circuit surfaces as a transient delivery error, so the
// advancer leaves the stage due and the next tick retries once the
// provider has had its recovery window.
type ProtectedNotifier struct {
	notifier campaign.Notifier
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

// NewProtectedNotifier wraps a notifier with breaker protection.
func NewProtectedNotifier(notifier campaign.Notifier, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedNotifier {
	return &ProtectedNotifier{
		notifier: notifier,
		breaker:  breaker,
		logger:   logger,
	}
}

// Send dispatches through the breaker. Permanent delivery failures do
// not trip the breaker — they say nothing about provider health.
func (p *ProtectedNotifier) Send(ctx context.Context, sub campaign.Subject, stage campaign.StageDefinition, payload campaign.RenderedPayload) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected dispatch, failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("subject_id", sub.ID.String()),
			zap.String("stage", stage.Name),
			zap.String("state", p.breaker.GetState().String()),
		)
		return campaign.Transient(fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, p.breaker.config.Name))
	}

	err := p.notifier.Send(ctx, sub, stage, payload)
	if err != nil {
		if campaign.IsPermanent(err) {
			p.breaker.RecordSuccess()
		} else {
			p.breaker.RecordFailure()
		}
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Breaker exposes the underlying breaker for the admin surface.
func (p *ProtectedNotifier) Breaker() *CircuitBreaker {
	return p.breaker
}

type channelNotifier interface {
	SupportsChannel(channel string) bool
}

// SupportsChannel delegates to the wrapped notifier, so a protected
// notifier can sit behind the channel router.
func (p *ProtectedNotifier) SupportsChannel(channel string) bool {
	if cn, ok := p.notifier.(channelNotifier); ok {
		return cn.SupportsChannel(channel)
	}
	return true
}
