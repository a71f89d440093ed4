package types

import (
	"fmt"
	"time"

	"github.com/eris-chaos/eris/pkg/cerrors"
)

// FaultKind identifies one injectable chaos primitive.
type FaultKind string

const (
	// ContainerKill stops the target container until it is explicitly recovered
	ContainerKill FaultKind = "container_kill"
	// ContainerPause freezes the target for the fault duration, then thaws it
	ContainerPause FaultKind = "container_pause"
	// NetworkDelay installs an egress netem delay for the fault duration
	NetworkDelay FaultKind = "network_delay"
	// CPUStress launches a detached cpu load inside the target
	CPUStress FaultKind = "cpu_stress"
)

// KnownFaultKinds lists every fault kind the backend can dispatch.
var KnownFaultKinds = []FaultKind{ContainerKill, ContainerPause, NetworkDelay, CPUStress}

// ExperimentStatus is the lifecycle state of an orchestration run.
// Pending and Running are transient and never appear in a finalized result.
type ExperimentStatus string

const (
	StatusPending ExperimentStatus = "pending"
	StatusRunning ExperimentStatus = "running"
	StatusPassed  ExperimentStatus = "passed"
	StatusFailed  ExperimentStatus = "failed"
	StatusAborted ExperimentStatus = "aborted"
)

// SteadyState is the health envelope the system is expected to stay in
// absent injected faults.
type SteadyState struct {
	MaxErrorRate  float64 `json:"max_error_rate" yaml:"max_error_rate"`
	MaxLatencyP95 float64 `json:"max_latency_p95" yaml:"max_latency_p95"`
}

// AbortConditions is the looser envelope whose breach mid-experiment
// triggers an emergency stop and recovery.
type AbortConditions struct {
	MaxErrorRate  float64 `json:"max_error_rate" yaml:"max_error_rate"`
	MaxLatencyP95 float64 `json:"max_latency_p95" yaml:"max_latency_p95"`
}

// ChaosConfig describes the fault to inject. It doubles as the wire body
// for the controller's POST /experiment endpoint.
type ChaosConfig struct {
	TargetService   string    `json:"target_service" yaml:"target_service"`
	ExperimentType  FaultKind `json:"experiment_type" yaml:"experiment_type"`
	DurationSeconds int       `json:"duration_seconds" yaml:"duration_seconds"`
	Intensity       int       `json:"intensity" yaml:"intensity"`
}

// SetDefaults fills the optional chaos fields with the stock values.
func (c *ChaosConfig) SetDefaults() {
	if c.DurationSeconds == 0 {
		c.DurationSeconds = 30
	}
	if c.Intensity == 0 {
		c.Intensity = 50
	}
}

// Experiment is an immutable experiment definition.
type Experiment struct {
	Name            string          `json:"name" yaml:"name"`
	Description     string          `json:"description" yaml:"description"`
	Hypothesis      string          `json:"hypothesis" yaml:"hypothesis"`
	SteadyState     SteadyState     `json:"steady_state" yaml:"steady_state"`
	AbortConditions AbortConditions `json:"abort_conditions" yaml:"abort_conditions"`
	Chaos           ChaosConfig     `json:"chaos" yaml:"chaos"`
}

// Validate rejects malformed definitions before any chaos is injected.
func (e Experiment) Validate() error {
	if e.Name == "" {
		return cerrors.Configuration{Field: "name", Reason: "experiment name is required"}
	}
	if e.Chaos.TargetService == "" {
		return cerrors.Configuration{Field: "chaos.target_service", Reason: "target service is required"}
	}
	if !isKnownFaultKind(e.Chaos.ExperimentType) {
		return cerrors.Configuration{Field: "chaos.experiment_type", Reason: fmt.Sprintf("unknown fault kind '%s'", e.Chaos.ExperimentType)}
	}
	if e.Chaos.DurationSeconds <= 0 {
		return cerrors.Configuration{Field: "chaos.duration_seconds", Reason: "duration must be a positive number of seconds"}
	}
	if e.Chaos.Intensity < 1 || e.Chaos.Intensity > 100 {
		return cerrors.Configuration{Field: "chaos.intensity", Reason: "intensity must be within [1,100]"}
	}
	if e.SteadyState.MaxErrorRate < 0 || e.SteadyState.MaxErrorRate > 1 {
		return cerrors.Configuration{Field: "steady_state.max_error_rate", Reason: "error rate bound must be within [0,1]"}
	}
	if e.SteadyState.MaxLatencyP95 <= 0 {
		return cerrors.Configuration{Field: "steady_state.max_latency_p95", Reason: "latency bound must be positive"}
	}
	// abort bounds must be at least as loose as steady state, otherwise an
	// abort could fire while the system is still inside its declared envelope
	if e.AbortConditions.MaxErrorRate < e.SteadyState.MaxErrorRate {
		return cerrors.Configuration{Field: "abort_conditions.max_error_rate", Reason: "abort error-rate bound must be >= steady-state bound"}
	}
	if e.AbortConditions.MaxLatencyP95 < e.SteadyState.MaxLatencyP95 {
		return cerrors.Configuration{Field: "abort_conditions.max_latency_p95", Reason: "abort latency bound must be >= steady-state bound"}
	}
	return nil
}

func isKnownFaultKind(kind FaultKind) bool {
	for _, known := range KnownFaultKinds {
		if kind == known {
			return true
		}
	}
	return false
}

// Snapshot is one health reading: error rate as a ratio and p95 latency in
// seconds over the trailing evaluation window.
type Snapshot struct {
	ErrorRate  float64 `json:"error_rate"`
	LatencyP95 float64 `json:"latency_p95"`
}

// ExperimentResult is the finalized record of one orchestration run.
// It is constructed exactly once and never mutated afterwards.
type ExperimentResult struct {
	ExperimentName    string           `json:"experiment_name"`
	Status            ExperimentStatus `json:"status"`
	Hypothesis        string           `json:"hypothesis"`
	StartedAt         time.Time        `json:"started_at"`
	EndedAt           time.Time        `json:"ended_at"`
	DurationSeconds   float64          `json:"duration_seconds"`
	SteadyStateBefore Snapshot         `json:"steady_state_before"`
	SteadyStateAfter  Snapshot         `json:"steady_state_after"`
	AbortTriggered    bool             `json:"abort_triggered"`
	AbortReason       string           `json:"abort_reason,omitempty"`
	Passed            bool             `json:"passed"`
	Summary           string           `json:"summary"`
}

// TargetInfo describes one workload instance known to the runtime.
type TargetInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Image  string `json:"image"`
}

// FaultRecord is the backend's record of one applied fault. RecoveryOwed
// stays true for faults that must still be reversed: a stopped container,
// or a pause/delay whose cleanup has not completed yet.
type FaultRecord struct {
	Target       string    `json:"target"`
	Kind         FaultKind `json:"type"`
	AppliedAt    time.Time `json:"timestamp"`
	Duration     int       `json:"duration"`
	Intensity    int       `json:"intensity"`
	Result       string    `json:"result"`
	Status       string    `json:"status"`
	RecoveryOwed bool      `json:"recovery_owed"`
}

// RecoveryOutcome reports what the recover operation actually did.
type RecoveryOutcome string

const (
	Recovered      RecoveryOutcome = "recovered"
	AlreadyRunning RecoveryOutcome = "already running"
)
