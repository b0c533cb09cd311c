package earth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// TickNotification is published after a tick commits.
type TickNotification struct {
	RunID     string            `json:"run_id"`
	Tick      uint64            `json:"tick"`
	TimeMy    float64           `json:"time_my"`
	Timestamp int64             `json:"timestamp"`
	Events    []GeologicalEvent `json:"events,omitempty"`
	Warnings  []Warning         `json:"warnings,omitempty"`
	Soil      SoilComposition   `json:"soil"`
}

// NewTickNotification builds the notification for a committed tick.
func NewTickNotification(runID string, res TickResult) TickNotification {
	return TickNotification{
		RunID:     runID,
		Tick:      res.Snapshot.Tick,
		TimeMy:    res.Snapshot.TimeMy,
		Timestamp: time.Now().Unix(),
		Events:    res.Events,
		Warnings:  res.Warnings,
		Soil:      res.Snapshot.Soil,
	}
}

// JSON returns the notification as JSON bytes
func (n TickNotification) JSON() ([]byte, error) {
	return json.Marshal(n)
}

// Notifier is the interface that all notification channels must implement
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the type of notifier (e.g., "webhook", "websocket")
	Type() string

	// Notify delivers a notification. The context carries cancellation and timeout.
	Notify(ctx context.Context, n TickNotification) error

	// Close closes the notifier and releases any resources
	Close() error
}

type notificationJob struct {
	Notification TickNotification
	NotifierIDs  []string
}

// NotificationManager routes tick notifications to registered notifiers through an
// asynchronous job queue, so a slow channel never blocks a tick.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger

	maxRetries int
	backoff    time.Duration
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(logger Logger) *NotificationManager {
	mgr := &NotificationManager{
		notifiers:  make(map[string]Notifier),
		jobs:       make(chan notificationJob, 1024),
		logger:     loggerOrNoOp(logger),
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
	mgr.startWorkers(1)
	return mgr
}

// RegisterNotifier registers a notifier with the manager
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}

	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}

	nm.notifiers[id] = notifier
	return nil
}

// UnregisterNotifier closes and removes a notifier
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}
	return nil
}

// GetNotifier retrieves a notifier by ID
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	notifier, exists := nm.notifiers[id]
	return notifier, exists
}

// ListNotifiers returns the registered notifier IDs in sorted order
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Enqueue queues a notification for asynchronous delivery. It never blocks: when the queue
// is full the notification is dropped and logged.
func (nm *NotificationManager) Enqueue(n TickNotification, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Notification: n, NotifierIDs: slices.Clone(notifierIDs)}:
	default:
		nm.logger.Warnf("notification queue full, dropping notification: run_id=%s tick=%d", n.RunID, n.Tick)
	}
}

func (nm *NotificationManager) startWorkers(n int) {
	for range n {
		nm.wg.Add(1)
		go nm.worker()
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Notification)
	}
}

// notifyWithRetry attempts delivery with exponential backoff
func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, n TickNotification) {
	notifier, ok := nm.GetNotifier(notifierID)
	if !ok {
		nm.logger.Errorf("notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	backoff := nm.backoff
	for attempt := 0; attempt <= nm.maxRetries; attempt++ {
		err := notifier.Notify(ctx, n)
		if err == nil {
			return
		}
		nm.logger.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)

		if attempt == nm.maxRetries {
			nm.logger.Errorf("notification failed after %d attempts: notifier=%s", nm.maxRetries+1, notifierID)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Notify delivers a notification synchronously to the given notifiers.
func (nm *NotificationManager) Notify(ctx context.Context, n TickNotification, notifierIDs []string) error {
	var errs []error
	for _, id := range notifierIDs {
		notifier, exists := nm.GetNotifier(id)
		if !exists {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s failed: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close drains the queue, stops the workers and closes every registered notifier
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	var errs []error
	for _, id := range slices.Sorted(maps.Keys(nm.notifiers)) {
		if err := nm.notifiers[id].Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	nm.mu.Unlock()

	return errors.Join(errs...)
}
