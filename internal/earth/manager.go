package earth

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// RunID is a unique identifier for a simulation run
type RunID string

// NewRunID returns a fresh random run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// Run is a clock registered with a RunManager together with the configuration it was built from.
type Run struct {
	ID        RunID
	Clock     *SimulationClock
	Config    RunConfig
	Notifiers []string
}

// RunManager manages multiple runs, each with its own isolated clock and state.
type RunManager struct {
	mu            sync.RWMutex
	runs          map[RunID]*Run
	notifications *NotificationManager
	logger        Logger
}

// NewRunManager creates a run manager. nm may be nil when no notifications are wanted.
func NewRunManager(nm *NotificationManager, logger Logger) *RunManager {
	return &RunManager{
		runs:          make(map[RunID]*Run),
		notifications: nm,
		logger:        loggerOrNoOp(logger),
	}
}

// CreateRun builds a clock from rc and registers it. An empty id gets a generated one.
// Returns an error if a run with that id already exists or the configuration is invalid.
func (rm *RunManager) CreateRun(id RunID, rc RunConfig) (*Run, error) {
	if id == "" {
		id = NewRunID()
	}

	cfg, err := BuildSimulationConfig(rc, rm.logger)
	if err != nil {
		return nil, err
	}
	if rm.notifications != nil {
		for _, nid := range rc.Notifiers {
			if _, ok := rm.notifications.GetNotifier(nid); !ok {
				return nil, fmt.Errorf("notifier %s is not registered: %w", nid, ErrInvalidConfig)
			}
		}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.runs[id]; exists {
		return nil, fmt.Errorf("run with id %s already exists", id)
	}

	clock, err := NewSimulationClock(cfg)
	if err != nil {
		return nil, err
	}
	if rm.notifications != nil && len(rc.Notifiers) > 0 {
		clock.SetNotifications(rm.notifications, string(id), rc.Notifiers)
	}

	run := &Run{ID: id, Clock: clock, Config: rc, Notifiers: slices.Clone(rc.Notifiers)}
	rm.runs[id] = run
	rm.logger.Infof("run %s created: step %.3f My, duration %.3f My", id, cfg.TimeStepMy, cfg.TotalDurationMy)
	return run, nil
}

// GetRun retrieves a run by ID
func (rm *RunManager) GetRun(id RunID) (*Run, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	run, exists := rm.runs[id]
	return run, exists
}

// DeleteRun stops and removes a run
func (rm *RunManager) DeleteRun(id RunID) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	run, exists := rm.runs[id]
	if !exists {
		return fmt.Errorf("run with id %s does not exist", id)
	}
	run.Clock.Stop()
	delete(rm.runs, id)
	rm.logger.Infof("run %s deleted", id)
	return nil
}

// ListRuns returns all run IDs in sorted order
func (rm *RunManager) ListRuns() []RunID {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	ids := make([]RunID, 0, len(rm.runs))
	for id := range rm.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// StopAll stops every running clock
func (rm *RunManager) StopAll() {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, run := range rm.runs {
		run.Clock.Stop()
	}
}
