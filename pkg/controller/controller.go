package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	containerkill "github.com/eris-chaos/eris/chaoslib/docker/container-kill/lib"
	containerpause "github.com/eris-chaos/eris/chaoslib/docker/container-pause/lib"
	cpustress "github.com/eris-chaos/eris/chaoslib/docker/cpu-stress/lib"
	networkdelay "github.com/eris-chaos/eris/chaoslib/docker/network-delay/lib"
	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
)

// Controller is the fault-injection backend: it resolves target names to
// workload instances, applies one fault primitive at a time, keeps the
// record of owed recovery actions, and can always attempt to put a target
// back into a healthy running state.
type Controller struct {
	runtime runtime.Client
	metrics *observability.ControllerMetrics

	mu          sync.Mutex
	history     []*types.FaultRecord
	targetLocks map[string]*sync.Mutex
}

// New builds a controller on the given runtime client.
func New(rt runtime.Client, metrics *observability.ControllerMetrics) *Controller {
	return &Controller{
		runtime:     rt,
		metrics:     metrics,
		targetLocks: make(map[string]*sync.Mutex),
	}
}

// ListTargets returns every running workload instance known to the runtime.
func (c *Controller) ListTargets(ctx context.Context) ([]types.TargetInfo, error) {
	containers, err := c.runtime.ListContainers(ctx, false)
	if err != nil {
		return nil, cerrors.Generic{Phase: "list-targets", Reason: err.Error()}
	}

	targets := make([]types.TargetInfo, 0, len(containers))
	for _, container := range containers {
		targets = append(targets, types.TargetInfo{
			Name:   container.Name,
			Status: container.State,
			Image:  container.Image,
		})
	}
	return targets, nil
}

// Apply resolves the chaos target and injects the requested fault. For
// pause and network delay the call blocks for the full fault duration and
// performs its own cleanup; kill and cpu stress return promptly. A failure
// in the cleanup half is surfaced on the fault record and to operators but
// never turns a successfully injected fault into an apply failure.
func (c *Controller) Apply(ctx context.Context, chaos types.ChaosConfig) (types.FaultRecord, error) {
	chaos.SetDefaults()

	target, err := c.resolveTarget(ctx, chaos.TargetService, false)
	if err != nil {
		c.metrics.ExperimentsTotal.WithLabelValues(string(chaos.ExperimentType), chaos.TargetService, "failed").Inc()
		return types.FaultRecord{}, err
	}

	// record bookkeeping lives under the backend mutex; the per-target lock
	// serializes apply/recover state transitions, including the initial
	// fault transition, but never the in-call duration wait, so recovery
	// stays able to reverse an in-progress pause or delay
	record := &types.FaultRecord{
		Target:    target.Name,
		Kind:      chaos.ExperimentType,
		AppliedAt: time.Now(),
		Duration:  chaos.DurationSeconds,
		Intensity: chaos.Intensity,
		Status:    "running",
		// every fault except the self-detaching stress starts out owing
		// its recovery action
		RecoveryOwed: chaos.ExperimentType != types.CPUStress,
	}
	c.appendRecord(record)

	err = c.inject(ctx, target, chaos)

	var status string
	switch {
	case err == nil:
		status = "success"
		c.updateRecord(record, func(r *types.FaultRecord) {
			r.Status = "success"
			r.Result = resultMessage(chaos)
			if chaos.ExperimentType != types.ContainerKill {
				r.RecoveryOwed = false
			}
		})
	case cerrors.GetErrorType(err) == cerrors.ErrorTypeRecovery:
		// fault landed, cleanup did not: the target may be left degraded,
		// keep the recovery debt on the record and shout
		log.Errorf("[Recovery]: Cleanup failed after injecting %v on %v, target may be degraded, err: %v",
			chaos.ExperimentType, target.Name, err)
		status = "success"
		c.updateRecord(record, func(r *types.FaultRecord) {
			r.Status = "success"
			r.Result = resultMessage(chaos)
		})
	default:
		status = "failed"
		c.updateRecord(record, func(r *types.FaultRecord) {
			r.Status = "failed"
			r.Result = err.Error()
			r.RecoveryOwed = false
		})
	}

	c.metrics.ExperimentsTotal.WithLabelValues(string(chaos.ExperimentType), target.Name, status).Inc()
	if status == "failed" {
		return c.snapshotRecord(record), err
	}
	return c.snapshotRecord(record), nil
}

// inject dispatches to the fault primitive. The state-changing half of every
// primitive runs inside the target's exclusive section; the duration wait
// and cleanup of the blocking primitives run outside it.
func (c *Controller) inject(ctx context.Context, target runtime.Container, chaos types.ChaosConfig) error {
	switch chaos.ExperimentType {
	case types.ContainerKill:
		return c.injectLocked(target.Name, func() error {
			return containerkill.InjectContainerKill(ctx, c.runtime, target, chaos)
		})
	case types.ContainerPause:
		if err := c.injectLocked(target.Name, func() error {
			return containerpause.PauseTarget(ctx, c.runtime, target, chaos)
		}); err != nil {
			return err
		}
		return containerpause.HoldAndThaw(ctx, c.runtime, target, chaos)
	case types.NetworkDelay:
		if err := c.injectLocked(target.Name, func() error {
			return networkdelay.AddNetworkDelay(ctx, c.runtime, target, chaos)
		}); err != nil {
			return err
		}
		return networkdelay.HoldAndRemove(ctx, c.runtime, target, chaos)
	case types.CPUStress:
		return c.injectLocked(target.Name, func() error {
			return cpustress.InjectCPUStress(ctx, c.runtime, target, chaos)
		})
	default:
		return cerrors.Configuration{Field: "experiment_type", Reason: fmt.Sprintf("unknown fault kind '%s'", chaos.ExperimentType)}
	}
}

func (c *Controller) injectLocked(target string, fn func() error) error {
	var err error
	c.withTargetLock(target, func() {
		err = fn()
	})
	return err
}

// Recover puts the named target back into a running state. It is
// idempotent: recovering a healthy target reports AlreadyRunning. It
// reverses whichever unsafe state the backend finds: a stopped container
// is started, a paused one is thawed, and an owed netem delay is removed.
func (c *Controller) Recover(ctx context.Context, name string) (types.RecoveryOutcome, error) {
	target, err := c.resolveTarget(ctx, name, true)
	if err != nil {
		return "", err
	}

	var outcome types.RecoveryOutcome
	var recoverErr error
	c.withTargetLock(target.Name, func() {
		outcome, recoverErr = c.recoverLocked(ctx, target)
	})
	if recoverErr != nil {
		return "", recoverErr
	}

	log.Infof("[Recovery]: Target %v recovery outcome: %v", target.Name, outcome)
	return outcome, nil
}

func (c *Controller) recoverLocked(ctx context.Context, target runtime.Container) (types.RecoveryOutcome, error) {
	details, err := c.runtime.InspectContainer(ctx, target.ID)
	if err != nil {
		return "", cerrors.Recovery{Target: target.Name, Reason: err.Error()}
	}

	switch details.State {
	case runtime.StatePaused:
		if err := c.runtime.UnpauseContainer(ctx, target.ID); err != nil {
			return "", cerrors.Recovery{Target: target.Name, Reason: err.Error()}
		}
		c.settleRecoveryDebt(target.Name)
		return types.Recovered, nil

	case runtime.StateRunning:
		// a running target may still carry an owed egress delay
		if record := c.owedRecord(target.Name, types.NetworkDelay); record != nil {
			if err := networkdelay.RemoveNetworkDelay(c.runtime, details); err != nil {
				return "", err
			}
			c.settleRecoveryDebt(target.Name)
			return types.Recovered, nil
		}
		return types.AlreadyRunning, nil

	default:
		if err := c.runtime.StartContainer(ctx, target.ID); err != nil {
			return "", cerrors.Recovery{Target: target.Name, Reason: err.Error()}
		}
		c.settleRecoveryDebt(target.Name)
		return types.Recovered, nil
	}
}

// History returns the backend-local fault history in application order.
func (c *Controller) History() []types.FaultRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]types.FaultRecord, 0, len(c.history))
	for _, record := range c.history {
		records = append(records, *record)
	}
	return records
}

// resolveTarget matches a name against the runtime's instances. Exact name
// matches win; otherwise substring matches are considered. No match is a
// NotFound condition and more than one is an Ambiguous one, which callers
// should treat as a configuration error rather than rely on listing order.
func (c *Controller) resolveTarget(ctx context.Context, name string, includeStopped bool) (runtime.Container, error) {
	if name == "" {
		return runtime.Container{}, cerrors.TargetSelection{Reason: "target name is empty", NotFound: true}
	}

	containers, err := c.runtime.ListContainers(ctx, includeStopped)
	if err != nil {
		return runtime.Container{}, cerrors.Generic{Phase: "resolve-target", Reason: err.Error()}
	}

	var matches []runtime.Container
	for _, container := range containers {
		if container.Name == name {
			return container, nil
		}
		if strings.Contains(container.Name, name) {
			matches = append(matches, container)
		}
	}

	switch len(matches) {
	case 0:
		return runtime.Container{}, cerrors.TargetSelection{Target: name, Reason: "no matching workload instance", NotFound: true}
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, match := range matches {
			names = append(names, match.Name)
		}
		return runtime.Container{}, cerrors.TargetSelection{
			Target:    name,
			Reason:    fmt.Sprintf("name matches multiple instances [%s], use an exact name", strings.Join(names, ", ")),
			Ambiguous: true,
		}
	}
}

func (c *Controller) appendRecord(record *types.FaultRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, record)
}

func (c *Controller) updateRecord(record *types.FaultRecord, mutate func(*types.FaultRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(record)
}

func (c *Controller) snapshotRecord(record *types.FaultRecord) types.FaultRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *record
}

// withTargetLock runs fn inside the target's exclusive section so apply
// and recover state transitions on one target never interleave.
func (c *Controller) withTargetLock(target string, fn func()) {
	c.mu.Lock()
	lock, ok := c.targetLocks[target]
	if !ok {
		lock = &sync.Mutex{}
		c.targetLocks[target] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

// owedRecord returns the most recent record of the given kind still owing
// recovery, nil when the target owes nothing.
func (c *Controller) owedRecord(target string, kind types.FaultKind) *types.FaultRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.history) - 1; i >= 0; i-- {
		record := c.history[i]
		if record.Target == target && record.Kind == kind && record.RecoveryOwed {
			return record
		}
	}
	return nil
}

func (c *Controller) settleRecoveryDebt(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.history {
		if record.Target == target && record.RecoveryOwed {
			record.RecoveryOwed = false
		}
	}
}

func resultMessage(chaos types.ChaosConfig) string {
	switch chaos.ExperimentType {
	case types.ContainerKill:
		return "Container stopped"
	case types.ContainerPause:
		return fmt.Sprintf("Container paused for %ds", chaos.DurationSeconds)
	case types.NetworkDelay:
		return fmt.Sprintf("Network delay of %dms for %ds", chaos.Intensity, chaos.DurationSeconds)
	case types.CPUStress:
		return fmt.Sprintf("CPU stress for %ds", chaos.DurationSeconds)
	default:
		return ""
	}
}
