package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daniacca/geosim/internal/earth"
)

// RunBuilder provides a fluent API for building run configurations.
// A run is one simulation clock on the server: a time step, a duration,
// a checkpoint cadence and optionally a climate history and calibration overrides.
type RunBuilder struct {
	id  string
	cfg earth.RunConfig
}

// NewRun creates a run builder. An empty id lets the server generate one.
// The builder starts with a 1 My step over 100 My.
func NewRun(id string) *RunBuilder {
	return &RunBuilder{
		id: id,
		cfg: earth.RunConfig{
			TimeStepMy:      1,
			TotalDurationMy: 100,
		},
	}
}

// Step sets the time step in millions of years.
func (rb *RunBuilder) Step(my float64) *RunBuilder {
	rb.cfg.TimeStepMy = my
	return rb
}

// Duration sets the total simulated duration in millions of years.
func (rb *RunBuilder) Duration(my float64) *RunBuilder {
	rb.cfg.TotalDurationMy = my
	return rb
}

// CheckpointEvery sets how many ticks separate two checkpoints.
func (rb *RunBuilder) CheckpointEvery(ticks int) *RunBuilder {
	rb.cfg.CheckpointIntervalTicks = ticks
	return rb
}

// Years bounds simulated time. Ticks and rewinds outside [minMy, maxMy] are rejected.
func (rb *RunBuilder) Years(minMy, maxMy float64) *RunBuilder {
	rb.cfg.MinYearMy = &minMy
	rb.cfg.MaxYearMy = &maxMy
	return rb
}

// ExactRewind selects whether rewinds replay to the exact target or stop at the checkpoint.
func (rb *RunBuilder) ExactRewind(exact bool) *RunBuilder {
	rb.cfg.ExactRewind = &exact
	return rb
}

// Workers sets how many goroutines share the layer phase of a tick.
func (rb *RunBuilder) Workers(n int) *RunBuilder {
	rb.cfg.Workers = n
	return rb
}

// Climate adds a climate keyframe. Between keyframes the server interpolates linearly.
func (rb *RunBuilder) Climate(timeMy, temperatureC, precipitation, vegetation float64) *RunBuilder {
	rb.cfg.Climate = append(rb.cfg.Climate, earth.ClimateKeyframe{
		TimeMy:             timeMy,
		TemperatureC:       temperatureC,
		PrecipitationProxy: precipitation,
		VegetationCoverage: vegetation,
	})
	return rb
}

// Constant overrides one calibration constant by its JSON name.
func (rb *RunBuilder) Constant(name string, value float64) *RunBuilder {
	if rb.cfg.Constants == nil {
		rb.cfg.Constants = make(map[string]float64)
	}
	rb.cfg.Constants[name] = value
	return rb
}

// Notifiers adds notifier IDs that receive every committed tick.
// Notifiers must be registered with the server separately.
func (rb *RunBuilder) Notifiers(ids ...string) *RunBuilder {
	rb.cfg.Notifiers = append(rb.cfg.Notifiers, ids...)
	return rb
}

// InitialState seeds the run from a snapshot instead of the standard Earth.
func (rb *RunBuilder) InitialState(snap earth.EarthStateSnapshot) *RunBuilder {
	rb.cfg.InitialState = &snap
	return rb
}

// Build returns the request body sent by CreateRun.
func (rb *RunBuilder) Build() RunRequest {
	return RunRequest{ID: rb.id, RunConfig: rb.cfg}
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	ID string `json:"id,omitempty"`
	earth.RunConfig
}

// RunStatus summarizes a run on the server.
type RunStatus struct {
	ID            string    `json:"id"`
	Tick          uint64    `json:"tick"`
	TimeMy        float64   `json:"time_my"`
	Running       bool      `json:"running"`
	Done          bool      `json:"done"`
	CheckpointsMy []float64 `json:"checkpoints_my"`
	Notifiers     []string  `json:"notifiers,omitempty"`
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to a geosim server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL (e.g., "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method string, query url.Values, body any, want int, out any, path ...string) error {
	u, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateRun creates a run from the builder and returns its status.
func (c *Client) CreateRun(ctx context.Context, rb *RunBuilder) (RunStatus, error) {
	var status RunStatus
	err := c.do(ctx, http.MethodPost, nil, rb.Build(), http.StatusCreated, &status, "runs")
	return status, err
}

// GetRun returns the status of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (RunStatus, error) {
	var status RunStatus
	err := c.do(ctx, http.MethodGet, nil, nil, http.StatusOK, &status, "runs", runID)
	return status, err
}

// ListRuns returns the IDs of every run on the server.
func (c *Client) ListRuns(ctx context.Context) ([]string, error) {
	var out struct {
		Runs []string `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, nil, nil, http.StatusOK, &out, "runs")
	return out.Runs, err
}

// DeleteRun stops and removes a run.
func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, http.StatusOK, nil, "runs", runID)
}

// Tick advances a run by dtMy. A zero dtMy uses the run's configured step and a negative
// one rewinds.
func (c *Client) Tick(ctx context.Context, runID string, dtMy float64) (earth.TickResult, error) {
	q := url.Values{}
	if dtMy != 0 {
		q.Set("dt", strconv.FormatFloat(dtMy, 'g', -1, 64))
	}
	var res earth.TickResult
	err := c.do(ctx, http.MethodPost, q, nil, http.StatusOK, &res, "runs", runID, "tick")
	return res, err
}

// Rewind restores a run at targetMy. A nil exact uses the run's configured mode.
func (c *Client) Rewind(ctx context.Context, runID string, targetMy float64, exact *bool) (earth.EarthStateSnapshot, error) {
	q := url.Values{"to": {strconv.FormatFloat(targetMy, 'g', -1, 64)}}
	if exact != nil {
		q.Set("exact", strconv.FormatBool(*exact))
	}
	var snap earth.EarthStateSnapshot
	err := c.do(ctx, http.MethodPost, q, nil, http.StatusOK, &snap, "runs", runID, "rewind")
	return snap, err
}

// Complete runs the remaining duration and returns the final snapshot.
func (c *Client) Complete(ctx context.Context, runID string) (earth.EarthStateSnapshot, error) {
	var snap earth.EarthStateSnapshot
	err := c.do(ctx, http.MethodPost, nil, nil, http.StatusOK, &snap, "runs", runID, "complete")
	return snap, err
}

// Snapshot returns the current state of a run.
func (c *Client) Snapshot(ctx context.Context, runID string) (earth.EarthStateSnapshot, error) {
	var snap earth.EarthStateSnapshot
	err := c.do(ctx, http.MethodGet, nil, nil, http.StatusOK, &snap, "runs", runID, "snapshot")
	return snap, err
}

// Events returns the events recorded between fromMy and toMy inclusive.
func (c *Client) Events(ctx context.Context, runID string, fromMy, toMy float64) ([]earth.GeologicalEvent, error) {
	q := url.Values{
		"from": {strconv.FormatFloat(fromMy, 'g', -1, 64)},
		"to":   {strconv.FormatFloat(toMy, 'g', -1, 64)},
	}
	var out struct {
		Events []earth.GeologicalEvent `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, q, nil, http.StatusOK, &out, "runs", runID, "events")
	return out.Events, err
}

// Start makes the server tick the run on every interval.
func (c *Client) Start(ctx context.Context, runID string, interval time.Duration) error {
	q := url.Values{"interval": {strconv.FormatInt(interval.Milliseconds(), 10)}}
	return c.do(ctx, http.MethodPost, q, nil, http.StatusOK, nil, "runs", runID, "start")
}

// Stop stops a run started with Start.
func (c *Client) Stop(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, nil, nil, http.StatusOK, nil, "runs", runID, "stop")
}

// RegisterWebhook registers a webhook notifier on the server.
func (c *Client) RegisterWebhook(ctx context.Context, id, hookURL string, headers map[string]string) error {
	cfg := map[string]any{"url": hookURL}
	if len(headers) > 0 {
		cfg["headers"] = headers
	}
	body := map[string]any{"type": "webhook", "id": id, "config": cfg}
	return c.do(ctx, http.MethodPost, nil, body, http.StatusOK, nil, "notifiers")
}

// UnregisterNotifier removes a notifier from the server.
func (c *Client) UnregisterNotifier(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, http.StatusOK, nil, "notifiers", id)
}
