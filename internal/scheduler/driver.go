// Package scheduler drives campaign ticks: a periodic scan per
// campaign type plus a synchronous manual trigger with identical
// semantics.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
	"github.com/lalithlochan/cadence/internal/metrics"
)

// Config tunes the driver. Zero values fall back to defaults.
type Config struct {
	// DefaultInterval is used for campaign tables that don't carry
	// their own interval. Production default is daily.
	DefaultInterval time.Duration

	// Concurrency bounds how many subjects are processed in parallel
	// within one tick. Safety comes from the store's conditional
	// advance, not from this limit; it only caps provider pressure.
	Concurrency int
}

// TickStats aggregates the outcomes of one tick over one campaign type.
type TickStats struct {
	Scanned   int `json:"scanned"`
	Fired     int `json:"fired"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// Driver owns one advancer per campaign type and runs them on their
// intervals. All dependencies are injected; there are no ambient
// clients anywhere below this point.
type Driver struct {
	registry  *campaign.Registry
	store     campaign.SubjectStore
	advancers map[string]*campaign.Advancer
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a driver. builders maps campaign type to its payload
// builder; every registered campaign type must have one. nowFn may be
// nil (time.Now).
func New(
	registry *campaign.Registry,
	store campaign.SubjectStore,
	notifier campaign.Notifier,
	builders map[string]campaign.PayloadBuilder,
	cfg Config,
	logger *zap.Logger,
	nowFn func() time.Time,
) (*Driver, error) {
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	advancers := make(map[string]*campaign.Advancer)
	for _, typ := range registry.Types() {
		tbl, _ := registry.Table(typ)
		builder, ok := builders[typ]
		if !ok {
			return nil, fmt.Errorf("campaign %q has no payload builder", typ)
		}
		advancers[typ] = campaign.NewAdvancer(tbl, store, notifier, builder, logger, nowFn)
	}

	return &Driver{
		registry:  registry,
		store:     store,
		advancers: advancers,
		config:    cfg,
		logger:    logger,
		now:       nowFn,
	}, nil
}

// Start runs one ticker per campaign type until ctx is cancelled. Ticks
// for the same campaign never overlap: each fires from its own serial
// loop and runs to completion before the next interval is consumed.
func (d *Driver) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, typ := range d.registry.Types() {
		tbl, _ := d.registry.Table(typ)
		interval := tbl.Interval
		if interval == 0 {
			interval = d.config.DefaultInterval
		}

		wg.Add(1)
		go func(campaignType string, interval time.Duration) {
			defer wg.Done()
			d.logger.Info("campaign schedule started",
				zap.String("campaign", campaignType),
				zap.Duration("interval", interval),
			)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					d.logger.Info("campaign schedule stopping", zap.String("campaign", campaignType))
					return
				case <-ticker.C:
					if _, err := d.RunNow(ctx, campaignType); err != nil {
						d.logger.Error("scheduled tick aborted",
							zap.String("campaign", campaignType),
							zap.Error(err),
						)
					}
				}
			}
		}(typ, interval)
	}
	wg.Wait()
}

// RunNow executes exactly one tick for the campaign type,
// synchronously. It is the manual-trigger entrypoint and is also what
// the scheduled ticker calls, so both paths have identical semantics.
// Re-entrant: concurrent runs are safe (the store's conditional advance
// arbitrates) though operationally discouraged.
func (d *Driver) RunNow(ctx context.Context, campaignType string) (TickStats, error) {
	adv, ok := d.advancers[campaignType]
	if !ok {
		return TickStats{}, fmt.Errorf("unknown campaign type %q", campaignType)
	}

	start := d.now()
	subjects, err := d.store.FetchActive(ctx, campaignType, start)
	if err != nil {
		// Abort the whole tick: nothing was dispatched, so nothing is
		// lost; the next tick retries from scratch.
		metrics.RecordTick(campaignType, "aborted", time.Since(start))
		return TickStats{}, fmt.Errorf("fetch active subjects: %w", err)
	}

	stats := d.processAll(ctx, adv, campaignType, subjects)

	d.logger.Info("tick complete",
		zap.String("campaign", campaignType),
		zap.Int("scanned", stats.Scanned),
		zap.Int("fired", stats.Fired),
		zap.Int("skipped", stats.Skipped),
		zap.Int("conflicts", stats.Conflicts),
		zap.Int("failed", stats.Failed),
	)
	metrics.RecordTick(campaignType, "ok", time.Since(start))
	return stats, nil
}

// processAll fans subjects out over a bounded worker pool. One
// subject's failure never aborts the others, and there is no in-tick
// retry: failures wait for the next scheduled tick.
func (d *Driver) processAll(ctx context.Context, adv *campaign.Advancer, campaignType string, subjects []campaign.Subject) TickStats {
	stats := TickStats{Scanned: len(subjects)}
	if len(subjects) == 0 {
		return stats
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.config.Concurrency)
	)

	for _, sub := range subjects {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub campaign.Subject) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := adv.Process(ctx, sub)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case campaign.OutcomeFired:
				stats.Fired++
				stage := sub.StageCursor // index of the stage that just fired
				metrics.RecordStageFired(campaignType, stage)
			case campaign.OutcomeNotDue:
				stats.Skipped++
			case campaign.OutcomeConflict:
				stats.Conflicts++
				metrics.RecordAdvanceConflict(campaignType)
			case campaign.OutcomeCompleted:
				stats.Completed++
			case campaign.OutcomeFailed:
				stats.Failed++
				class := "transient"
				if campaign.IsPermanent(err) {
					class = "permanent"
				}
				metrics.RecordDeliveryFailure(campaignType, class)
			}
		}(sub)
	}
	wg.Wait()

	return stats
}
