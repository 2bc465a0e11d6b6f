package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubjectStore is the contract the scheduler requires of the external
// store. Advance is the sole idempotency primitive: it must mutate the
// subject only when the stored cursor still equals expectedCursor, and
// report ErrAdvanceConflict otherwise.
type SubjectStore interface {
	FetchActive(ctx context.Context, campaignType string, now time.Time) ([]Subject, error)
	Advance(ctx context.Context, id uuid.UUID, expectedCursor, newCursor int, newStatus Status, firedAt time.Time) error
}

// RenderedPayload is the channel-agnostic message content a payload
// builder produces and a notifier delivers.
type RenderedPayload struct {
	Channel string // email, sms, webhook, queue
	To      string
	Subject string
	Body    string
}

// Notifier delivers a rendered payload over some channel. The scheduler
// is agnostic to the mechanism; failures are classified via
// Transient/Permanent.
type Notifier interface {
	Send(ctx context.Context, sub Subject, stage StageDefinition, payload RenderedPayload) error
}

// PayloadBuilder turns a subject's domain fields into message content
// for a stage. Pure: no I/O.
type PayloadBuilder interface {
	Build(sub Subject, stage StageDefinition) (RenderedPayload, error)
}

// Outcome is the result of processing one subject in one tick.
type Outcome int

const (
	OutcomeNotDue Outcome = iota
	OutcomeFired
	OutcomeConflict
	OutcomeFailed
	OutcomeCompleted // cursor already past the last stage, marked done
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotDue:
		return "not_due"
	case OutcomeFired:
		return "fired"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailed:
		return "failed"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Advancer turns "a stage is due" into "a stage was safely fired" for
// one campaign table. The store write happens only after a successful
// send, and only through the conditional advance, so a stage can never
// fire twice in normal operation. A crash between send success and the
// store write can cause one duplicate send on the next tick; that
// at-least-once trade-off is accepted rather than hidden.
type Advancer struct {
	table    Table
	store    SubjectStore
	notifier Notifier
	builder  PayloadBuilder
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdvancer wires an advancer for one campaign table. nowFn may be
// nil, in which case time.Now is used.
func NewAdvancer(table Table, store SubjectStore, notifier Notifier, builder PayloadBuilder, logger *zap.Logger, nowFn func() time.Time) *Advancer {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Advancer{
		table:    table,
		store:    store,
		notifier: notifier,
		builder:  builder,
		logger:   logger,
		now:      nowFn,
	}
}

// Process evaluates one subject and, if a stage is due, dispatches it
// and records the advance. The returned error is non-nil only for
// OutcomeFailed.
func (a *Advancer) Process(ctx context.Context, sub Subject) (Outcome, error) {
	now := a.now()

	if sub.Status.Terminal() {
		// FetchActive should never hand us these; tolerate it anyway.
		return OutcomeNotDue, nil
	}

	if sub.StageCursor >= a.table.Len() {
		return a.completeOverrun(ctx, sub, now)
	}

	stage, due := NextDueStage(sub, a.table, now)
	if !due {
		return OutcomeNotDue, nil
	}

	payload, err := a.builder.Build(sub, stage)
	if err != nil {
		a.logger.Error("payload build failed",
			zap.String("campaign", a.table.Type),
			zap.String("subject_id", sub.ID.String()),
			zap.String("stage", stage.Name),
			zap.Error(err),
		)
		return OutcomeFailed, err
	}

	if err := a.notifier.Send(ctx, sub, stage, payload); err != nil {
		// No state change: the same stage stays due and is retried on
		// the next tick.
		if IsPermanent(err) {
			a.logger.Error("stage dispatch failed permanently, subject needs operator attention",
				zap.String("campaign", a.table.Type),
				zap.String("subject_id", sub.ID.String()),
				zap.String("stage", stage.Name),
				zap.Error(err),
			)
		} else {
			a.logger.Warn("stage dispatch failed, will retry next tick",
				zap.String("campaign", a.table.Type),
				zap.String("subject_id", sub.ID.String()),
				zap.String("stage", stage.Name),
				zap.Error(err),
			)
		}
		return OutcomeFailed, err
	}

	newStatus := StatusActive
	if stage.Terminal {
		newStatus = a.table.TerminalStatus
	}

	err = a.store.Advance(ctx, sub.ID, stage.Index, stage.Index+1, newStatus, now)
	if errors.Is(err, ErrAdvanceConflict) {
		// Another process got there first. This process made at most
		// one send; nothing to undo.
		a.logger.Info("advance conflict, subject already handled",
			zap.String("campaign", a.table.Type),
			zap.String("subject_id", sub.ID.String()),
			zap.String("stage", stage.Name),
		)
		return OutcomeConflict, nil
	}
	if err != nil {
		a.logger.Error("advance write failed after successful send, stage may repeat next tick",
			zap.String("campaign", a.table.Type),
			zap.String("subject_id", sub.ID.String()),
			zap.String("stage", stage.Name),
			zap.Error(err),
		)
		return OutcomeFailed, fmt.Errorf("record advance: %w", err)
	}

	a.logger.Info("stage fired",
		zap.String("campaign", a.table.Type),
		zap.String("subject_id", sub.ID.String()),
		zap.String("stage", stage.Name),
		zap.Int("cursor", stage.Index+1),
		zap.String("status", string(newStatus)),
	)
	return OutcomeFired, nil
}

// completeOverrun handles a stored cursor already past the last stage
// with a status that never went terminal. No stage fires; the subject
// is marked completed at its current cursor.
func (a *Advancer) completeOverrun(ctx context.Context, sub Subject, now time.Time) (Outcome, error) {
	err := a.store.Advance(ctx, sub.ID, sub.StageCursor, sub.StageCursor, StatusCompleted, now)
	if errors.Is(err, ErrAdvanceConflict) {
		return OutcomeConflict, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("mark completed: %w", err)
	}
	a.logger.Warn("subject cursor past final stage, marked completed",
		zap.String("campaign", a.table.Type),
		zap.String("subject_id", sub.ID.String()),
		zap.Int("cursor", sub.StageCursor),
	)
	return OutcomeCompleted, nil
}
