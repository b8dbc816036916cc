// Package health serves the operational HTTP surface of the ETL process:
// dependency probes, the pipeline status snapshot and prometheus metrics.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type State string

const (
	StateUp       State = "up"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

const probeTimeout = 3 * time.Second

// Probe is the outcome of pinging one dependency.
type Probe struct {
	State     State  `json:"state"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Report struct {
	State         State            `json:"state"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Probes        map[string]Probe `json:"probes,omitempty"`
	CheckedAt     time.Time        `json:"checked_at"`
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// StatusFunc reports pipeline progress for /api/v1/status.
type StatusFunc func() any

type target struct {
	ping     PingFunc
	optional bool
}

// Checker collects dependency pings registered while the process starts up.
// Handlers are safe to serve before startup finishes.
type Checker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	targets map[string]target
	status  StatusFunc
	ready   bool
}

func NewChecker(version string) *Checker {
	return &Checker{
		version: version,
		started: time.Now(),
		targets: map[string]target{},
	}
}

// AddCheck registers a dependency the pipeline cannot run without.
func (c *Checker) AddCheck(name string, ping PingFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[name] = target{ping: ping}
}

// AddOptionalCheck registers a dependency whose failure only degrades the process.
func (c *Checker) AddOptionalCheck(name string, ping PingFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[name] = target{ping: ping, optional: true}
}

func (c *Checker) SetStatusFunc(fn StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = fn
}

func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check pings every registered dependency in parallel and folds the results.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	targets := make(map[string]target, len(c.targets))
	for name, t := range c.targets {
		targets[name] = t
	}
	c.mu.RUnlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		probes = make(map[string]Probe, len(targets))
	)
	for name, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := probe(ctx, t)
			mu.Lock()
			probes[name] = p
			mu.Unlock()
		}()
	}
	wg.Wait()

	state := StateUp
	for _, p := range probes {
		if p.State == StateDown {
			state = StateDown
			break
		}
		if p.State == StateDegraded {
			state = StateDegraded
		}
	}
	return c.report(state, probes)
}

func probe(ctx context.Context, t target) Probe {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := t.ping(ctx)
	p := Probe{State: StateUp, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		p.State = StateDown
		if t.optional {
			p.State = StateDegraded
		}
		p.Error = err.Error()
	}
	return p
}

func (c *Checker) report(state State, probes map[string]Probe) Report {
	return Report{
		State:         state,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Probes:        probes,
		CheckedAt:     time.Now().UTC(),
	}
}

func (c *Checker) live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.report(StateUp, nil))
}

// readiness fails until every dependency has started, then mirrors health.
func (c *Checker) readiness(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, c.report(StateDown, map[string]Probe{
			"startup": {State: StateDown, Error: "dependencies are still starting"},
		}))
	}
	return c.health(ctx)
}

func (c *Checker) health(ctx echo.Context) error {
	r := c.Check(ctx.Request().Context())
	code := http.StatusOK
	if r.State == StateDown {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, r)
}

func (c *Checker) pipelineStatus(ctx echo.Context) error {
	c.mu.RLock()
	fn := c.status
	c.mu.RUnlock()

	if fn == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "status not available")
	}
	return ctx.JSON(http.StatusOK, fn())
}

// RegisterRoutes mounts the health, status and metrics routes.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/health")
	g.GET("", c.health)
	g.GET("/live", c.live)
	g.GET("/ready", c.readiness)

	e.GET("/api/v1/status", c.pipelineStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
