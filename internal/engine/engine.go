package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aerofarm/internal/metrics"
	"aerofarm/internal/models"

	"github.com/rs/zerolog"
)

// RuleStore is the slice of the backing store the engine consumes. Rules are
// created and edited elsewhere; the engine only reads them and writes back
// last-executed timestamps.
type RuleStore interface {
	ActiveRules(ctx context.Context) ([]models.AutomationRule, error)
	DeviceByID(ctx context.Context, id int64) (*models.Device, error)
	PersistRuleExecutions(ctx context.Context, executed map[int64]time.Time) error
}

// SnapshotSource serves the latest sensor reading per device.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, deviceID int64) (*models.SensorSnapshot, error)
}

// Options control cycle timing.
type Options struct {
	CycleInterval   time.Duration
	StartupDelay    time.Duration
	DispatchTimeout time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine runs the automation cycle: fetch active rules by priority, evaluate
// each against the clock or the device's latest reading, dispatch commands
// for the ones that fire, and batch-persist their execution timestamps.
type Engine struct {
	store      RuleStore
	snapshots  SnapshotSource
	evaluator  *Evaluator
	dispatcher *Dispatcher

	cycleInterval   time.Duration
	startupDelay    time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time

	log zerolog.Logger
}

// New assembles an engine from its collaborators.
func New(store RuleStore, snapshots SnapshotSource, evaluator *Evaluator, dispatcher *Dispatcher, opts Options, logger zerolog.Logger) *Engine {
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = time.Minute
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:           store,
		snapshots:       snapshots,
		evaluator:       evaluator,
		dispatcher:      dispatcher,
		cycleInterval:   opts.CycleInterval,
		startupDelay:    opts.StartupDelay,
		dispatchTimeout: opts.DispatchTimeout,
		now:             opts.Now,
		log:             logger.With().Str("component", "engine").Logger(),
	}
}

// Run drives cycles until ctx is cancelled. The interval is measured from
// cycle completion, so slow cycles never pile up. Cancellation is observed
// between rules and between cycles, never mid-dispatch.
func (e *Engine) Run(ctx context.Context) error {
	if e.startupDelay > 0 {
		// Let the broker and store finish starting before the first cycle.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.startupDelay):
		}
	}

	e.log.Info().Dur("cycle_interval", e.cycleInterval).Msg("engine started")

	for {
		e.runCycle(ctx)

		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return nil
		case <-time.After(e.cycleInterval):
		}
	}
}

// runCycle performs one full pass over the active rules. The rule list is a
// snapshot: edits made while the cycle runs become visible next cycle.
func (e *Engine) runCycle(ctx context.Context) {
	started := time.Now()
	now := e.now().UTC()

	rules, err := e.store.ActiveRules(ctx)
	if err != nil {
		// Without current rule data nothing can be evaluated safely.
		metrics.CyclesAborted.Inc()
		e.log.Error().Err(err).Msg("rule fetch failed, cycle aborted")
		return
	}

	executed := make(map[int64]time.Time)

	for i := range rules {
		if ctx.Err() != nil {
			e.log.Info().Int("remaining", len(rules)-i).Msg("shutdown requested, cycle cut short")
			break
		}

		rule := rules[i]
		metrics.RulesEvaluated.Inc()

		if err := e.processRule(ctx, rule, now, executed); err != nil {
			switch {
			case errors.Is(err, ErrDeviceUnresolvable):
				e.log.Debug().Int64("rule_id", rule.ID).Msg("rule skipped, device unresolvable")
			case errors.Is(err, ErrChannelUnavailable):
				metrics.DispatchFailures.WithLabelValues("channel_unavailable").Inc()
				e.log.Warn().Int64("rule_id", rule.ID).Err(err).Msg("dispatch failed, rule will retry next cycle")
			default:
				metrics.DispatchFailures.WithLabelValues("other").Inc()
				e.log.Warn().Int64("rule_id", rule.ID).Err(err).Msg("rule processing failed")
			}
			continue
		}
	}

	if len(executed) > 0 {
		// Like the dispatch path, the persist rides out cancellation: the
		// commands behind these timestamps already went out, so a shutdown
		// mid-cycle must not drop the timestamps that prevent re-firing.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
		defer cancel()

		if err := e.store.PersistRuleExecutions(persistCtx, executed); err != nil {
			// Commands are already out. Losing these timestamps means the
			// affected rules may fire again next cycle; accepted tradeoff.
			e.log.Warn().Int("rules", len(executed)).Err(err).
				Msg("failed to persist execution timestamps, duplicate dispatch possible")
		}
	}

	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	e.log.Debug().
		Int("rules", len(rules)).
		Int("fired", len(executed)).
		Dur("took", time.Since(started)).
		Msg("cycle complete")
}

// processRule resolves the rule's device, evaluates it, and dispatches on a
// positive decision. The execution timestamp is recorded only after the
// dispatcher reports success, so a failed publish leaves the rule eligible.
func (e *Engine) processRule(ctx context.Context, rule models.AutomationRule, now time.Time, executed map[int64]time.Time) error {
	device, err := e.store.DeviceByID(ctx, rule.DeviceID)
	if err != nil {
		return fmt.Errorf("resolve device %d: %w: %v", rule.DeviceID, ErrStoreUnavailable, err)
	}
	if device == nil || strings.TrimSpace(device.MacAddress) == "" {
		return fmt.Errorf("rule %d: %w", rule.ID, ErrDeviceUnresolvable)
	}

	var snap *models.SensorSnapshot
	if rule.RuleType == models.RuleThreshold {
		snap, err = e.snapshots.LatestSnapshot(ctx, rule.DeviceID)
		if err != nil {
			// Evaluate as if the device never reported; the rule just skips.
			e.log.Debug().Int64("device_id", rule.DeviceID).Err(err).Msg("snapshot lookup failed")
			snap = nil
		}
	}

	if !e.evaluator.ShouldFire(rule, now, snap) {
		return nil
	}

	// The dispatch rides out cancellation: an in-flight command completes,
	// only further rules are cut off.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
	defer cancel()

	if _, err := e.dispatcher.Execute(dispatchCtx, rule, *device, now); err != nil {
		return err
	}

	metrics.CommandsPublished.Inc()
	executed[rule.ID] = now
	return nil
}
