package earth

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// timeEpsilon absorbs rounding when comparing simulated times in My.
const timeEpsilon = 1e-9

type checkpoint struct {
	tick       uint64
	timeMy     float64
	state      *EarthState // event log excluded
	eventCount int
}

// journalEntry records one committed tick so a rewind can replay it exactly.
type journalEntry struct {
	tick    uint64
	startMy float64
	dtMy    float64
}

// SimulationClock owns an EarthState and drives it through time. Ticks, rewinds and
// checkpoints are serialized by a single mutex, so a tick is never observed half applied.
type SimulationClock struct {
	mu          sync.Mutex
	cfg         SimulationConfig
	state       *EarthState
	pipeline    *Pipeline
	checkpoints []checkpoint
	journal     []journalEntry
	startMy     float64
	logger      Logger

	notifications *NotificationManager
	runID         string
	notifierIDs   []string

	stopCh    chan struct{}
	isRunning bool
}

// NewSimulationClock validates cfg and starts a clock at the initial state. The initial
// state is always checkpointed.
func NewSimulationClock(cfg SimulationConfig) (*SimulationClock, error) {
	if err := ValidateSimulationConfig(cfg); err != nil {
		return nil, err
	}

	var state *EarthState
	if cfg.InitialState != nil {
		state = cfg.InitialState.Clone()
	} else {
		state = NewStandardEarth()
	}
	if state.Events == nil {
		state.Events = NewEventLog()
	}

	logger := loggerOrNoOp(cfg.Logger)
	c := &SimulationClock{
		cfg:      cfg,
		state:    state,
		pipeline: NewPipeline(cfg.Constants, cfg.Workers, logger),
		startMy:  state.TimeMy,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	c.recordCheckpoint()
	return c, nil
}

// SetNotifications routes every committed tick to the given notifiers.
func (c *SimulationClock) SetNotifications(nm *NotificationManager, runID string, notifierIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nm
	c.runID = runID
	c.notifierIDs = append([]string(nil), notifierIDs...)
}

// Now returns the current simulated time in My.
func (c *SimulationClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TimeMy
}

// Snapshot returns the current state.
func (c *SimulationClock) Snapshot() EarthStateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// Config returns the configuration the clock was started with.
func (c *SimulationClock) Config() SimulationConfig {
	return c.cfg
}

// CheckpointTimes lists the simulated times of the retained checkpoints, oldest first.
func (c *SimulationClock) CheckpointTimes() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.checkpoints))
	for i, cp := range c.checkpoints {
		out[i] = cp.timeMy
	}
	return out
}

// Tick advances the simulation by dtMy. A negative dtMy rewinds to now+dtMy through the
// checkpoints; the result then carries no events. A zero step is rejected.
func (c *SimulationClock) Tick(dtMy float64) (TickResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dtMy < 0 {
		snap, err := c.rewindLocked(c.state.TimeMy+dtMy, c.cfg.ExactRewind)
		if err != nil {
			return TickResult{}, err
		}
		return TickResult{Snapshot: snap}, nil
	}
	return c.advanceLocked(dtMy, true)
}

// advanceLocked runs one forward tick. Callers hold c.mu.
func (c *SimulationClock) advanceLocked(dtMy float64, notify bool) (TickResult, error) {
	if !(dtMy > 0) || math.IsInf(dtMy, 0) {
		return TickResult{}, fmt.Errorf("dt %v: %w", dtMy, ErrNonPositiveStep)
	}
	start := c.state.TimeMy
	if start+dtMy > c.cfg.MaxYearMy+timeEpsilon {
		return TickResult{}, fmt.Errorf("tick to %v My past max year %v: %w", start+dtMy, c.cfg.MaxYearMy, ErrOutOfTimeBounds)
	}

	res, err := c.state.Tick(dtMy, c.cfg.Climate(start), c.pipeline)
	if err != nil {
		return TickResult{}, err
	}
	c.journal = append(c.journal, journalEntry{tick: c.state.TickCount, startMy: start, dtMy: dtMy})
	if c.state.TickCount%uint64(c.cfg.CheckpointIntervalTicks) == 0 {
		c.recordCheckpoint()
	}
	c.logger.Debugf("tick %d committed at %.3f My with %d events", c.state.TickCount, c.state.TimeMy, len(res.Events))

	if notify && c.notifications != nil {
		c.notifications.Enqueue(NewTickNotification(c.runID, res), c.notifierIDs)
	}
	return res, nil
}

func (c *SimulationClock) recordCheckpoint() {
	c.checkpoints = append(c.checkpoints, checkpoint{
		tick:       c.state.TickCount,
		timeMy:     c.state.TimeMy,
		state:      c.state.cloneWithoutLog(),
		eventCount: c.state.Events.Len(),
	})
}

// Rewind restores the state at targetMy using the configured rewind mode.
func (c *SimulationClock) Rewind(targetMy float64) (EarthStateSnapshot, error) {
	return c.RewindTo(targetMy, c.cfg.ExactRewind)
}

// RewindTo restores the nearest checkpoint at or before targetMy. With exact set, the ticks
// journaled after that checkpoint are replayed up to targetMy, finishing with a partial tick
// when the target falls inside a tick. Everything recorded after the restored point is
// discarded: events, checkpoints and journal. A replay that fails leaves the clock untouched.
func (c *SimulationClock) RewindTo(targetMy float64, exact bool) (EarthStateSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewindLocked(targetMy, exact)
}

func (c *SimulationClock) rewindLocked(targetMy float64, exact bool) (EarthStateSnapshot, error) {
	if math.IsNaN(targetMy) || targetMy < c.cfg.MinYearMy-timeEpsilon || targetMy > c.cfg.MaxYearMy+timeEpsilon {
		return EarthStateSnapshot{}, fmt.Errorf("rewind to %v My outside [%v, %v]: %w",
			targetMy, c.cfg.MinYearMy, c.cfg.MaxYearMy, ErrOutOfTimeBounds)
	}
	if targetMy > c.state.TimeMy+timeEpsilon {
		return EarthStateSnapshot{}, fmt.Errorf("rewind target %v My is after current time %v My: %w",
			targetMy, c.state.TimeMy, ErrOutOfTimeBounds)
	}

	idx := -1
	for i, cp := range c.checkpoints {
		if cp.timeMy <= targetMy+timeEpsilon {
			idx = i
		}
	}
	if idx < 0 {
		return EarthStateSnapshot{}, fmt.Errorf("rewind to %v My: %w", targetMy, ErrNoCheckpoint)
	}
	cp := c.checkpoints[idx]

	// A failed replay puts everything back as it was before the rewind.
	prevState, prevLog := c.state, c.state.Events.clone()
	prevCheckpoints, prevJournal := slices.Clone(c.checkpoints), slices.Clone(c.journal)
	restore := func() {
		c.state = prevState
		c.state.Events = prevLog
		c.checkpoints = prevCheckpoints
		c.journal = prevJournal
	}

	var replay []journalEntry
	kept := c.journal[:0:0]
	for _, j := range c.journal {
		if j.tick <= cp.tick {
			kept = append(kept, j)
		} else {
			replay = append(replay, j)
		}
	}

	log := c.state.Events
	log.truncate(cp.eventCount)
	c.state = cp.state.cloneWithoutLog()
	c.state.Events = log
	c.checkpoints = c.checkpoints[:idx+1]
	c.journal = kept
	c.logger.Infof("rewound to checkpoint at tick %d (%.3f My), target %.3f My", cp.tick, cp.timeMy, targetMy)

	if !exact {
		return c.state.Snapshot(), nil
	}

	for _, j := range replay {
		if j.startMy+j.dtMy > targetMy+timeEpsilon {
			break
		}
		if _, err := c.advanceLocked(j.dtMy, false); err != nil {
			restore()
			return EarthStateSnapshot{}, fmt.Errorf("replaying tick %d: %w", j.tick, err)
		}
	}
	if remaining := targetMy - c.state.TimeMy; remaining > timeEpsilon {
		if _, err := c.advanceLocked(remaining, false); err != nil {
			restore()
			return EarthStateSnapshot{}, fmt.Errorf("replaying partial tick: %w", err)
		}
	}
	return c.state.Snapshot(), nil
}

// ReplayEvents returns the recorded events with fromMy <= timestamp <= toMy in log order.
func (c *SimulationClock) ReplayEvents(fromMy, toMy float64) ([]GeologicalEvent, error) {
	if math.IsNaN(fromMy) || math.IsNaN(toMy) || fromMy > toMy {
		return nil, fmt.Errorf("events from %v to %v: %w", fromMy, toMy, ErrInvalidRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Events.Range(fromMy, toMy), nil
}

// Done reports whether the configured total duration has elapsed.
func (c *SimulationClock) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneLocked()
}

func (c *SimulationClock) doneLocked() bool {
	return c.state.TimeMy >= c.startMy+c.cfg.TotalDurationMy-timeEpsilon
}

// RunToCompletion ticks with the configured step until the total duration has elapsed. The
// last step is shortened to land exactly on the end time.
func (c *SimulationClock) RunToCompletion() (EarthStateSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.doneLocked() {
		if _, err := c.advanceLocked(c.nextStepLocked(), true); err != nil {
			return c.state.Snapshot(), err
		}
	}
	return c.state.Snapshot(), nil
}

// nextStepLocked is the configured step, shortened to land on the end time.
func (c *SimulationClock) nextStepLocked() float64 {
	end := c.startMy + c.cfg.TotalDurationMy
	return math.Min(c.cfg.TimeStepMy, end-c.state.TimeMy)
}

// runStep advances one step of a Run loop. done reports that the duration has elapsed.
func (c *SimulationClock) runStep() (done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doneLocked() {
		return true, nil
	}
	_, err = c.advanceLocked(c.nextStepLocked(), true)
	return false, err
}

// Run starts a goroutine that ticks with the configured step on every interval until Stop
// is called, a tick fails, or the total duration has elapsed. It can be called again after
// stopping.
func (c *SimulationClock) Run(interval time.Duration) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	c.isRunning = true
	stopCh := c.stopCh
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer func() {
			c.mu.Lock()
			c.isRunning = false
			c.mu.Unlock()
		}()

		for {
			select {
			case <-ticker.C:
				done, err := c.runStep()
				if err != nil {
					c.logger.Errorf("run stopped: %v", err)
					return
				}
				if done {
					c.logger.Infof("run finished at %.3f My", c.Now())
					return
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop stops a running clock. After stopping, Run() can be called again.
func (c *SimulationClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRunning {
		return
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// IsRunning reports whether the ticker loop is active.
func (c *SimulationClock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}
