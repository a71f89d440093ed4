package runner

import (
	"context"
	"sync"

	"github.com/eris-chaos/eris/pkg/events"
	"github.com/eris-chaos/eris/pkg/orchestrator"
	"github.com/eris-chaos/eris/pkg/registry"
	"github.com/eris-chaos/eris/pkg/types"
)

// ErrTargetBusy reports a run request for a target that already has an
// experiment in flight. Runs against distinct targets proceed in parallel;
// two runs against one target would make the fault record and the health
// signal unattributable, so the service refuses the second.
type ErrTargetBusy struct {
	Target string
}

func (e ErrTargetBusy) Error() string {
	return "an experiment is already running against target '" + e.Target + "'"
}

// Service owns experiment loading, per-target run serialization, and the
// result history for the runner's control plane.
type Service struct {
	store        *registry.Store
	history      *registry.History
	orchestrator *orchestrator.Orchestrator
	recorder     *events.Recorder

	mu      sync.Mutex
	running map[string]bool
}

// NewService wires the runner service.
func NewService(store *registry.Store, history *registry.History, orch *orchestrator.Orchestrator, recorder *events.Recorder) *Service {
	return &Service{
		store:        store,
		history:      history,
		orchestrator: orch,
		recorder:     recorder,
		running:      make(map[string]bool),
	}
}

// RunByName loads a stored definition and runs it.
func (s *Service) RunByName(ctx context.Context, name string) (types.ExperimentResult, error) {
	experiment, err := s.store.Load(name)
	if err != nil {
		return types.ExperimentResult{}, err
	}
	return s.Run(ctx, experiment)
}

// Run validates and executes one experiment, appending the finalized result
// to history. The per-target lock is held for the whole run.
func (s *Service) Run(ctx context.Context, experiment types.Experiment) (types.ExperimentResult, error) {
	experiment.Chaos.SetDefaults()
	if err := experiment.Validate(); err != nil {
		return types.ExperimentResult{}, err
	}

	if !s.acquireTarget(experiment.Chaos.TargetService) {
		return types.ExperimentResult{}, ErrTargetBusy{Target: experiment.Chaos.TargetService}
	}
	defer s.releaseTarget(experiment.Chaos.TargetService)

	result := s.orchestrator.Run(ctx, experiment)
	s.history.Append(result)
	return result, nil
}

// List returns the stored definition names.
func (s *Service) List() ([]string, error) {
	return s.store.List()
}

// Get returns one stored definition.
func (s *Service) Get(name string) (types.Experiment, error) {
	return s.store.Load(name)
}

// History returns all finalized results in insertion order.
func (s *Service) History() []types.ExperimentResult {
	return s.history.All()
}

// HistoryByName returns the finalized results of one experiment.
func (s *Service) HistoryByName(name string) []types.ExperimentResult {
	return s.history.ByName(name)
}

// Events returns the lifecycle event trail of recent runs.
func (s *Service) Events() []events.Event {
	return s.recorder.Events()
}

func (s *Service) acquireTarget(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[target] {
		return false
	}
	s.running[target] = true
	return true
}

func (s *Service) releaseTarget(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, target)
}
