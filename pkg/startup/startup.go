// Package startup brings up the pipeline's external dependencies in order,
// retrying the whole set with fibonacci backoff until they all answer.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type status int

const (
	statusPending status = iota
	statusStarted
	statusStopped
	statusFailed
)

// Func adapts plain functions to a Dependency. Stop may be nil.
type Func struct {
	Name     string
	Requires []string
	StartFn  func(ctx context.Context) error
	StopFn   func(ctx context.Context) error
}

func (f *Func) GetName() string     { return f.Name }
func (f *Func) DependsOn() []string { return f.Requires }

func (f *Func) Start(ctx context.Context) error {
	return f.StartFn(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

type Startup struct {
	order       []string
	deps        map[string]Dependency
	statuses    map[string]status
	logger      ectologger.Logger
	maxAttempts int
	unit        time.Duration
}

func New(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Startup{
		deps:        map[string]Dependency{},
		statuses:    map[string]status{},
		logger:      logger,
		maxAttempts: maxAttempts,
		unit:        time.Second,
	}
}

func (s *Startup) Add(dep Dependency) {
	if _, ok := s.deps[dep.GetName()]; !ok {
		s.order = append(s.order, dep.GetName())
	}
	s.deps[dep.GetName()] = dep
}

// Start starts every dependency not yet running. A failed attempt waits 1, 1, 2, 3, 5... units
// before retrying the ones that did not come up.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error
	a, b := 1, 1

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithContext(ctx).WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range s.order {
			if err := s.start(ctx, name, nil); err != nil {
				s.logger.WithContext(ctx).WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.unit
		s.logger.WithContext(ctx).Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) start(ctx context.Context, name string, visiting []string) error {
	dep, ok := s.deps[name]
	if !ok {
		return fmt.Errorf("unknown startup dependency %q", name)
	}
	if s.statuses[name] == statusStarted {
		return nil
	}
	for _, v := range visiting {
		if v == name {
			return fmt.Errorf("startup dependency cycle through %q", name)
		}
	}

	for _, required := range dep.DependsOn() {
		if err := s.start(ctx, required, append(visiting, name)); err != nil {
			return err
		}
	}

	log := s.logger.WithContext(ctx).WithField("dependency", name)
	log.Infof("Starting dependency '%s'", name)
	s.statuses[name] = statusPending
	if err := dep.Start(ctx); err != nil {
		s.statuses[name] = statusFailed
		return fmt.Errorf("%s: %w", name, err)
	}
	s.statuses[name] = statusStarted
	return nil
}

// Stop stops started dependencies in reverse registration order. Every one is attempted;
// the first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.order) - 1; i >= 0; i-- {
		name := s.order[i]
		if s.statuses[name] != statusStarted {
			continue
		}

		log := s.logger.WithContext(ctx).WithField("dependency", name)
		log.Infof("Stopping dependency '%s'", name)
		if err := s.deps[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = statusStopped
	}
	return firstErr
}
