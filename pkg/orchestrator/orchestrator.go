package orchestrator

import (
	"context"
	"time"

	"github.com/eris-chaos/eris/pkg/events"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/eris-chaos/eris/pkg/utils/common"
	"github.com/eris-chaos/eris/pkg/utils/retry"
	"github.com/kyokomi/emoji"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HealthChecker is the steady-state oracle the orchestrator polls.
type HealthChecker interface {
	IsSteady(ctx context.Context, bounds types.SteadyState) (bool, types.Snapshot)
	ShouldAbort(ctx context.Context, bounds types.AbortConditions) (bool, string, types.Snapshot)
}

// ChaosInjector triggers fault injection and recovery across the
// controller's service boundary.
type ChaosInjector interface {
	Inject(ctx context.Context, chaos types.ChaosConfig) error
	Recover(ctx context.Context, target string) error
}

// Orchestrator drives one chaos experiment through its state machine:
// pre-check, injection, bounded monitoring with early abort, stabilization,
// conditional recovery, post-check, verdict. Run never returns an error;
// every failure path resolves into a terminal status on the result.
type Orchestrator struct {
	health   HealthChecker
	chaos    ChaosInjector
	recorder *events.Recorder
	metrics  *observability.RunnerMetrics

	// PollInterval is the monitoring loop tick.
	PollInterval time.Duration
	// StabilizeWait lets transient effects decay before measuring recovery.
	StabilizeWait time.Duration
	// RecoveryGrace is the extra wait for a killed target to rejoin service.
	RecoveryGrace time.Duration
	// InjectConfirmWait is how long to wait for an immediate injection
	// failure before treating a still-open apply call (pause, delay) as a
	// successfully landed fault.
	InjectConfirmWait time.Duration
}

// New builds an orchestrator with the stock timing profile.
func New(health HealthChecker, chaos ChaosInjector, recorder *events.Recorder, metrics *observability.RunnerMetrics) *Orchestrator {
	return &Orchestrator{
		health:            health,
		chaos:             chaos,
		recorder:          recorder,
		metrics:           metrics,
		PollInterval:      2 * time.Second,
		StabilizeWait:     5 * time.Second,
		RecoveryGrace:     10 * time.Second,
		InjectConfirmWait: 3 * time.Second,
	}
}

// Run executes one experiment end to end and returns the finalized result.
// The caller owns appending the result to history and serializing runs that
// share a target.
func (o *Orchestrator) Run(ctx context.Context, experiment types.Experiment) types.ExperimentResult {
	runID := common.GetRunID()
	startedAt := time.Now()

	ctx, span := otel.Tracer("eris/orchestrator").Start(ctx, "experiment.run",
		trace.WithAttributes(
			attribute.String("experiment.name", experiment.Name),
			attribute.String("experiment.fault", string(experiment.Chaos.ExperimentType)),
			attribute.String("experiment.target", experiment.Chaos.TargetService),
		))
	defer span.End()

	log.InfoWithValues("[PreReq]: Starting chaos experiment", logrus.Fields{
		"Experiment": experiment.Name,
		"Target":     experiment.Chaos.TargetService,
		"Fault":      experiment.Chaos.ExperimentType,
		"Duration":   experiment.Chaos.DurationSeconds,
		"RunID":      runID,
	})

	// Pre-check: chaos is never injected into an already-unhealthy system.
	o.recorder.Record(experiment.Name, runID, events.PreChaosCheck, "Verifying steady state before chaos injection")
	healthy, before := o.health.IsSteady(ctx, experiment.SteadyState)
	if !healthy {
		log.Warnf("[Status]: System outside steady state before injection, aborting %v", experiment.Name)
		return o.finalize(experiment, runID, span, verdict{
			status:         types.StatusAborted,
			startedAt:      startedAt,
			zeroDuration:   true,
			before:         before,
			after:          before,
			abortTriggered: true,
			abortReason:    "System not in steady state before experiment",
			summary:        "Experiment aborted: system was unhealthy before chaos injection",
		})
	}
	log.Info("[Status]: Steady state verified, injecting chaos")

	// Injection runs concurrently: pause and network-delay applies hold the
	// call open for the whole fault window, while an apply-half failure
	// comes back promptly.
	o.recorder.Record(experiment.Name, runID, events.ChaosInject,
		"Injecting "+string(experiment.Chaos.ExperimentType)+" on "+experiment.Chaos.TargetService)
	injectDone := make(chan error, 1)
	go func() {
		injectDone <- o.chaos.Inject(ctx, experiment.Chaos)
	}()

	confirm := time.NewTimer(o.InjectConfirmWait)
	injectionPending := false
	select {
	case err := <-injectDone:
		if err != nil {
			log.Errorf("[Chaos]: Injection failed for %v, err: %v", experiment.Name, err)
			confirm.Stop()
			return o.finalize(experiment, runID, span, verdict{
				status:       types.StatusFailed,
				startedAt:    startedAt,
				zeroDuration: true,
				before:       before,
				after:        before,
				summary:      "Experiment failed: could not inject chaos",
			})
		}
	case <-confirm.C:
		injectionPending = true
	case <-ctx.Done():
		// the apply call may already have landed the fault server-side;
		// recovery is idempotent, so an un-landed fault reports
		// already-running and nothing is lost
		confirm.Stop()
		o.recoverBestEffort(context.Background(), experiment, runID)
		return o.cancelRun(experiment, runID, span, startedAt, before)
	}
	confirm.Stop()

	if injectionPending {
		// surface a late failure from the blocking apply without holding
		// up the monitoring loop
		go func() {
			if err := <-injectDone; err != nil {
				log.Errorf("[Chaos]: Fault apply on %v finished with error after monitoring began, err: %v",
					experiment.Chaos.TargetService, err)
			}
		}()
	}

	// Monitoring loop: poll the abort bounds for up to the fault duration,
	// bailing out on the first breach instead of waiting out the window.
	log.Infof("[Chaos]: Monitoring %v for %vs, polling every %v",
		experiment.Name, experiment.Chaos.DurationSeconds, o.PollInterval)

	aborted := false
	abortReason := ""
	cancelled := false
	window := time.Duration(experiment.Chaos.DurationSeconds) * time.Second

monitoring:
	for elapsed := time.Duration(0); elapsed < window; elapsed += o.PollInterval {
		tick := time.NewTimer(o.PollInterval)
		select {
		case <-ctx.Done():
			tick.Stop()
			cancelled = true
			break monitoring
		case <-tick.C:
		}

		breach, reason, snapshot := o.health.ShouldAbort(ctx, experiment.AbortConditions)
		log.InfoWithValues("[Chaos]: Monitoring tick", logrus.Fields{
			"Experiment": experiment.Name,
			"ErrorRate":  snapshot.ErrorRate,
			"LatencyP95": snapshot.LatencyP95,
		})
		if breach {
			log.Errorf("[Abort]: Abort condition met for %v: %v", experiment.Name, reason)
			aborted = true
			abortReason = reason
			o.recorder.Record(experiment.Name, runID, events.AbortSignal, reason)
			o.recoverBestEffort(ctx, experiment, runID)
			break monitoring
		}
	}

	if cancelled {
		o.recoverBestEffort(context.Background(), experiment, runID)
		return o.cancelRun(experiment, runID, span, startedAt, before)
	}

	// Stabilization: let transient effects decay before measuring recovery.
	log.Infof("[Wait]: Chaos window over for %v, stabilizing for %v", experiment.Name, o.StabilizeWait)
	time.Sleep(o.StabilizeWait)

	// A killed target never comes back on its own; recover it now unless an
	// abort already forced recovery, then give it the grace window to
	// rejoin service.
	if experiment.Chaos.ExperimentType == types.ContainerKill && !aborted {
		o.recorder.Record(experiment.Name, runID, events.ChaosRecovery,
			"Recovering killed target "+experiment.Chaos.TargetService)
		if err := o.chaos.Recover(ctx, experiment.Chaos.TargetService); err != nil {
			log.Errorf("[Recovery]: Recovery of %v failed, target may be left degraded, err: %v",
				experiment.Chaos.TargetService, err)
		}
		o.waitForRejoin(ctx, experiment)
	}

	// Post-check and verdict.
	o.recorder.Record(experiment.Name, runID, events.PostChaosCheck, "Verifying steady state after chaos")
	healthyAfter, after := o.health.IsSteady(ctx, experiment.SteadyState)

	result := verdict{
		startedAt:      startedAt,
		before:         before,
		after:          after,
		abortTriggered: aborted,
		abortReason:    abortReason,
	}
	switch {
	case aborted:
		result.status = types.StatusAborted
		result.summary = "Experiment aborted: " + abortReason
	case healthyAfter:
		result.status = types.StatusPassed
		result.passed = true
		result.summary = "Hypothesis validated: system recovered to steady state after chaos"
	default:
		result.status = types.StatusFailed
		result.summary = "Hypothesis failed: system did not return to steady state after chaos"
	}
	return o.finalize(experiment, runID, span, result)
}

// waitForRejoin polls steady state for up to the grace window so a
// recovered target that comes back early does not burn the full wait. Not
// rejoining in time is not an error here; the post-check owns the verdict.
func (o *Orchestrator) waitForRejoin(ctx context.Context, experiment types.Experiment) {
	attempts := uint(o.RecoveryGrace / o.PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	log.Infof("[Wait]: Waiting up to %v for %v to rejoin service", o.RecoveryGrace, experiment.Chaos.TargetService)
	if err := retry.
		Times(attempts).
		Wait(o.PollInterval).
		Try(func(attempt uint) error {
			if healthy, _ := o.health.IsSteady(ctx, experiment.SteadyState); !healthy {
				return errors.Errorf("%v is not back in steady state", experiment.Chaos.TargetService)
			}
			return nil
		}); err != nil {
		log.Warnf("[Wait]: Grace window elapsed for %v, err: %v", experiment.Chaos.TargetService, err)
	}
}

// recoverBestEffort restores the target after an abort or cancellation.
// Failure is logged loudly but never changes the run's verdict: whether the
// system survived the fault is independent of whether cleanup worked.
func (o *Orchestrator) recoverBestEffort(ctx context.Context, experiment types.Experiment, runID string) {
	if experiment.Chaos.ExperimentType == types.CPUStress {
		// stress self-expires and owes nothing
		return
	}
	o.recorder.Record(experiment.Name, runID, events.ChaosRecovery,
		"Best-effort recovery of "+experiment.Chaos.TargetService)
	if err := o.chaos.Recover(ctx, experiment.Chaos.TargetService); err != nil {
		log.Errorf("[Recovery]: Best-effort recovery of %v failed, target may be left degraded, err: %v",
			experiment.Chaos.TargetService, err)
	}
}

func (o *Orchestrator) cancelRun(experiment types.Experiment, runID string, span trace.Span, startedAt time.Time, before types.Snapshot) types.ExperimentResult {
	log.Warnf("[Abort]: Run of %v cancelled externally", experiment.Name)
	return o.finalize(experiment, runID, span, verdict{
		status:         types.StatusAborted,
		startedAt:      startedAt,
		before:         before,
		after:          before,
		abortTriggered: true,
		abortReason:    "run cancelled",
		summary:        "Experiment aborted: run cancelled",
	})
}

// verdict carries the terminal outcome into finalize.
type verdict struct {
	status         types.ExperimentStatus
	startedAt      time.Time
	zeroDuration   bool
	before         types.Snapshot
	after          types.Snapshot
	abortTriggered bool
	abortReason    string
	passed         bool
	summary        string
}

func (o *Orchestrator) finalize(experiment types.Experiment, runID string, span trace.Span, v verdict) types.ExperimentResult {
	endedAt := time.Now()
	duration := endedAt.Sub(v.startedAt).Seconds()
	if v.zeroDuration {
		duration = 0
	}

	result := types.ExperimentResult{
		ExperimentName:    experiment.Name,
		Status:            v.status,
		Hypothesis:        experiment.Hypothesis,
		StartedAt:         v.startedAt,
		EndedAt:           endedAt,
		DurationSeconds:   duration,
		SteadyStateBefore: v.before,
		SteadyStateAfter:  v.after,
		AbortTriggered:    v.abortTriggered,
		AbortReason:       v.abortReason,
		Passed:            v.passed,
		Summary:           v.summary,
	}

	o.metrics.ExperimentsTotal.WithLabelValues(experiment.Name, string(v.status)).Inc()
	span.SetAttributes(attribute.String("experiment.verdict", string(v.status)))
	o.recorder.Record(experiment.Name, runID, events.Summary, v.summary)
	log.Info(emoji.Sprintf(":cyclone: [The End]: Experiment %v completed with verdict %v", experiment.Name, v.status))
	return result
}
