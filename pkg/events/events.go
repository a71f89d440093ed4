package events

import (
	"sync"
	"time"

	"github.com/eris-chaos/eris/pkg/log"
	"github.com/sirupsen/logrus"
)

// Reasons for the lifecycle events a run emits.
const (
	// PreChaosCheck initial stage of experiment check for health before chaos injection
	PreChaosCheck string = "PreChaosCheck"
	// ChaosInject this stage refer to the main chaos injection
	ChaosInject string = "ChaosInject"
	// AbortSignal marks an abort-bound breach during monitoring
	AbortSignal string = "AbortSignal"
	// ChaosRecovery marks a recovery attempt for the target
	ChaosRecovery string = "ChaosRecovery"
	// PostChaosCheck pre-final stage of experiment check for health after chaos injection
	PostChaosCheck string = "PostChaosCheck"
	// Summary final stage of experiment update the verdict
	Summary string = "Summary"
)

// Event is one lifecycle breadcrumb of an orchestration run.
type Event struct {
	Experiment string    `json:"experiment"`
	RunID      string    `json:"run_id"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Recorder keeps a bounded in-process trail of run events and mirrors each
// one to the log. Safe for concurrent runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder builds a recorder retaining at most limit events.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 512
	}
	return &Recorder{limit: limit}
}

// Record appends one event and logs it.
func (r *Recorder) Record(experiment, runID, reason, message string) {
	event := Event{
		Experiment: experiment,
		RunID:      runID,
		Reason:     reason,
		Message:    message,
		Time:       time.Now(),
	}

	log.InfoWithValues("[Event]: "+message, logrus.Fields{
		"Experiment": experiment,
		"RunID":      runID,
		"Reason":     reason,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded trail in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	trail := make([]Event, len(r.events))
	copy(trail, r.events)
	return trail
}
