package registry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/types"
	"gopkg.in/yaml.v2"
)

// Store loads experiment definitions from a directory of YAML files, one
// definition per name. Definitions are validated at load time so a
// malformed experiment is rejected before any chaos is injected.
type Store struct {
	dir string
}

// NewStore builds a store over the given definitions directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns the names of every stored definition.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, cerrors.ExperimentCRUD{Operation: "list", Reason: err.Error()}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	return names, nil
}

// Load reads and validates one definition by name.
func (s *Store) Load(name string) (types.Experiment, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".yaml"))
	if os.IsNotExist(err) {
		return types.Experiment{}, cerrors.ExperimentCRUD{Name: name, Operation: "load", Reason: "no such definition", NotFound: true}
	}
	if err != nil {
		return types.Experiment{}, cerrors.ExperimentCRUD{Name: name, Operation: "load", Reason: err.Error()}
	}

	var experiment types.Experiment
	if err := yaml.Unmarshal(raw, &experiment); err != nil {
		return types.Experiment{}, cerrors.ExperimentCRUD{Name: name, Operation: "parse", Reason: err.Error()}
	}

	experiment.Chaos.SetDefaults()
	if err := experiment.Validate(); err != nil {
		return types.Experiment{}, err
	}
	return experiment, nil
}

// History is the append-only in-process record of finalized run results.
// Appends from parallel runs are safe; reads return copies in insertion
// order.
type History struct {
	mu      sync.Mutex
	results []types.ExperimentResult
}

// NewHistory builds an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records one finalized result.
func (h *History) Append(result types.ExperimentResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

// All returns every recorded result in insertion order.
func (h *History) All() []types.ExperimentResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	results := make([]types.ExperimentResult, len(h.results))
	copy(results, h.results)
	return results
}

// ByName returns the recorded results for one experiment.
func (h *History) ByName(name string) []types.ExperimentResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	filtered := make([]types.ExperimentResult, 0)
	for _, result := range h.results {
		if result.ExperimentName == name {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
