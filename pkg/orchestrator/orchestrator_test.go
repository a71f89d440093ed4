package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eris-chaos/eris/pkg/events"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *orderLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *orderLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]string, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *orderLog) indexOf(entry string) int {
	for i, e := range l.all() {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeHealth struct {
	log *orderLog

	preHealthy   bool
	preSnapshot  types.Snapshot
	postHealthy  bool
	postSnapshot types.Snapshot

	// steadySeq, when set, is consumed one reading per steady-state check
	// after the pre-check; once drained, checks fall back to postHealthy
	steadySeq []bool

	// abortAt is the 1-based monitoring tick on which the abort bound is
	// breached, 0 means never
	abortAt       int
	abortReason   string
	abortSnapshot types.Snapshot

	mu          sync.Mutex
	steadyCalls int
	abortCalls  int
}

func (f *fakeHealth) IsSteady(ctx context.Context, bounds types.SteadyState) (bool, types.Snapshot) {
	f.mu.Lock()
	f.steadyCalls++
	call := f.steadyCalls
	var queued *bool
	if call > 1 && len(f.steadySeq) > 0 {
		head := f.steadySeq[0]
		f.steadySeq = f.steadySeq[1:]
		queued = &head
	}
	f.mu.Unlock()

	if call == 1 {
		f.log.add("pre-check")
		return f.preHealthy, f.preSnapshot
	}
	f.log.add("post-check")
	if queued != nil {
		return *queued, f.postSnapshot
	}
	return f.postHealthy, f.postSnapshot
}

func (f *fakeHealth) steadyChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steadyCalls
}

func (f *fakeHealth) ShouldAbort(ctx context.Context, bounds types.AbortConditions) (bool, string, types.Snapshot) {
	f.mu.Lock()
	f.abortCalls++
	call := f.abortCalls
	f.mu.Unlock()

	if f.abortAt > 0 && call >= f.abortAt {
		return true, f.abortReason, f.abortSnapshot
	}
	return false, "", types.Snapshot{}
}

type fakeChaos struct {
	log *orderLog

	injectErr   error
	injectDelay time.Duration
	recoverErr  error

	mu           sync.Mutex
	injectCalls  int
	recoverCalls []string
}

func (f *fakeChaos) Inject(ctx context.Context, chaos types.ChaosConfig) error {
	f.mu.Lock()
	f.injectCalls++
	f.mu.Unlock()
	f.log.add("inject")
	if f.injectDelay > 0 {
		time.Sleep(f.injectDelay)
	}
	return f.injectErr
}

func (f *fakeChaos) Recover(ctx context.Context, target string) error {
	f.mu.Lock()
	f.recoverCalls = append(f.recoverCalls, target)
	f.mu.Unlock()
	f.log.add("recover")
	return f.recoverErr
}

func (f *fakeChaos) injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injectCalls
}

func (f *fakeChaos) recovered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := make([]string, len(f.recoverCalls))
	copy(targets, f.recoverCalls)
	return targets
}

func newTestOrchestrator(health *fakeHealth, chaos *fakeChaos) *Orchestrator {
	o := New(health, chaos, events.NewRecorder(64), observability.NewRunnerMetrics(prometheus.NewRegistry()))
	o.PollInterval = 10 * time.Millisecond
	o.StabilizeWait = time.Millisecond
	o.RecoveryGrace = time.Millisecond
	o.InjectConfirmWait = 25 * time.Millisecond
	return o
}

func sampleExperiment(kind types.FaultKind) types.Experiment {
	return types.Experiment{
		Name:        "checkout-" + string(kind),
		Description: "exercise the checkout path under " + string(kind),
		Hypothesis:  "checkout stays within steady state",
		SteadyState: types.SteadyState{
			MaxErrorRate:  0.01,
			MaxLatencyP95: 0.5,
		},
		AbortConditions: types.AbortConditions{
			MaxErrorRate:  0.5,
			MaxLatencyP95: 5.0,
		},
		Chaos: types.ChaosConfig{
			TargetService:   "checkout",
			ExperimentType:  kind,
			DurationSeconds: 1,
			Intensity:       50,
		},
	}
}

func TestRunAbortsWhenPreCheckUnhealthy(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:         log,
		preHealthy:  false,
		preSnapshot: types.Snapshot{ErrorRate: 0.2, LatencyP95: 1.2},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.ContainerKill))

	assert.Equal(t, types.StatusAborted, result.Status)
	assert.True(t, result.AbortTriggered)
	assert.Equal(t, "System not in steady state before experiment", result.AbortReason)
	assert.False(t, result.Passed)
	assert.Equal(t, float64(0), result.DurationSeconds)
	assert.Equal(t, result.SteadyStateBefore, result.SteadyStateAfter)
	assert.Equal(t, 0, chaos.injected(), "chaos must never reach an unhealthy system")
}

func TestRunFailsWhenInjectionFails(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:         log,
		preHealthy:  true,
		preSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
	}
	chaos := &fakeChaos{log: log, injectErr: assert.AnError}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.NetworkDelay))

	assert.Equal(t, types.StatusFailed, result.Status)
	assert.False(t, result.Passed)
	assert.False(t, result.AbortTriggered)
	assert.Equal(t, float64(0), result.DurationSeconds)
	assert.Equal(t, "Experiment failed: could not inject chaos", result.Summary)
	assert.Empty(t, chaos.recovered())
}

func TestRunScenarioHealthyPreCheckProceedsToInjection(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		preSnapshot:  types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
		postHealthy:  true,
		postSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	o.Run(context.Background(), sampleExperiment(types.CPUStress))

	assert.Equal(t, 1, chaos.injected())
}

func TestRunAbortTriggersRecoveryBeforePostCheck(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:           log,
		preHealthy:    true,
		preSnapshot:   types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
		postHealthy:   true,
		postSnapshot:  types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1},
		abortAt:       1,
		abortReason:   "error rate 0.60 exceeded abort threshold 0.50",
		abortSnapshot: types.Snapshot{ErrorRate: 0.6, LatencyP95: 0.2},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	start := time.Now()
	result := o.Run(context.Background(), sampleExperiment(types.NetworkDelay))
	elapsed := time.Since(start)

	assert.Equal(t, types.StatusAborted, result.Status)
	assert.True(t, result.AbortTriggered)
	assert.Contains(t, result.AbortReason, "0.60 exceeded abort threshold 0.50")
	assert.False(t, result.Passed, "any abort forces aborted regardless of post-check outcome")
	assert.Equal(t, "Experiment aborted: "+result.AbortReason, result.Summary)

	require.Equal(t, []string{"checkout"}, chaos.recovered())
	recoverIdx := log.indexOf("recover")
	postIdx := log.indexOf("post-check")
	require.GreaterOrEqual(t, recoverIdx, 0)
	require.GreaterOrEqual(t, postIdx, 0)
	assert.Less(t, recoverIdx, postIdx, "recovery must happen before the post-check")

	// the breach fires on the first tick, not after the full fault window
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRunKillRecoversExactlyOnceThenPasses(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		preSnapshot:  types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
		postHealthy:  true,
		postSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.ContainerKill))

	assert.Equal(t, types.StatusPassed, result.Status)
	assert.True(t, result.Passed)
	assert.False(t, result.AbortTriggered)
	assert.Equal(t, types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1}, result.SteadyStateAfter)
	assert.Greater(t, result.DurationSeconds, float64(0))

	require.Equal(t, []string{"checkout"}, chaos.recovered())
	assert.Less(t, log.indexOf("recover"), log.indexOf("post-check"))
}

func TestRunSelfExpiringFaultSkipsRecovery(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		postHealthy:  true,
		postSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.ContainerPause))

	assert.Equal(t, types.StatusPassed, result.Status)
	assert.Empty(t, chaos.recovered(), "pause self-expires, no orchestrator recovery without an abort")
}

func TestRunFailsWhenPostCheckUnhealthy(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		preSnapshot:  types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.05},
		postHealthy:  false,
		postSnapshot: types.Snapshot{ErrorRate: 0.09, LatencyP95: 2.0},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.ContainerPause))

	assert.Equal(t, types.StatusFailed, result.Status)
	assert.False(t, result.Passed)
	assert.False(t, result.AbortTriggered)
	assert.Equal(t, "Hypothesis failed: system did not return to steady state after chaos", result.Summary)
	assert.Equal(t, types.Snapshot{ErrorRate: 0.09, LatencyP95: 2.0}, result.SteadyStateAfter)
}

func TestRunRecoveryFailureDoesNotChangeVerdict(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		postHealthy:  true,
		postSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1},
	}
	chaos := &fakeChaos{log: log, recoverErr: assert.AnError}
	o := newTestOrchestrator(health, chaos)

	result := o.Run(context.Background(), sampleExperiment(types.ContainerKill))

	assert.Equal(t, types.StatusPassed, result.Status)
	assert.True(t, result.Passed)
	require.Len(t, chaos.recovered(), 1)
}

func TestRunKillGracePollsForRejoin(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:          log,
		preHealthy:   true,
		postHealthy:  true,
		postSnapshot: types.Snapshot{ErrorRate: 0.0, LatencyP95: 0.1},
		// the restarted target needs a few polls before it reads steady again
		steadySeq: []bool{false, false, true},
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)
	o.RecoveryGrace = 200 * time.Millisecond

	result := o.Run(context.Background(), sampleExperiment(types.ContainerKill))

	assert.Equal(t, types.StatusPassed, result.Status)
	require.Equal(t, []string{"checkout"}, chaos.recovered())
	// pre-check, three grace polls, post-check
	assert.Equal(t, 5, health.steadyChecks())
}

func TestRunCancelledDuringApplyStillRecovers(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:        log,
		preHealthy: true,
	}
	chaos := &fakeChaos{log: log, injectDelay: 300 * time.Millisecond}
	o := newTestOrchestrator(health, chaos)
	o.InjectConfirmWait = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := o.Run(ctx, sampleExperiment(types.ContainerKill))

	assert.Equal(t, types.StatusAborted, result.Status)
	assert.Equal(t, "run cancelled", result.AbortReason)
	assert.Equal(t, []string{"checkout"}, chaos.recovered(),
		"a fault that may already have landed still gets its recovery attempt")
}

func TestRunCancellationStillAttemptsRecovery(t *testing.T) {
	log := &orderLog{}
	health := &fakeHealth{
		log:        log,
		preHealthy: true,
	}
	chaos := &fakeChaos{log: log}
	o := newTestOrchestrator(health, chaos)

	experiment := sampleExperiment(types.ContainerPause)
	experiment.Chaos.DurationSeconds = 5

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := o.Run(ctx, experiment)

	assert.Equal(t, types.StatusAborted, result.Status)
	assert.Equal(t, "run cancelled", result.AbortReason)
	assert.Equal(t, []string{"checkout"}, chaos.recovered(), "a cancelled run must not skip cleanup")
}
