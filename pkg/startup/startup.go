// Package startup brings external dependencies up before a run, retrying with Fibonacci backoff.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type Dependency interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Func adapts a pair of functions to Dependency. A nil stop does nothing.
type Func struct {
	DependencyName string
	StartFunc      func(ctx context.Context) error
	StopFunc       func(ctx context.Context) error
}

func (f Func) Name() string { return f.DependencyName }

func (f Func) Start(ctx context.Context) error { return f.StartFunc(ctx) }

func (f Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies []Dependency
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	unit         time.Duration
}

// New creates a startup sequence. Dependencies start in the order they are added.
func New(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		statuses:    make(map[string]Status),
		logger:      logger,
		maxAttempts: maxAttempts,
		unit:        time.Second,
	}
}

func (s *Startup) Add(dependency Dependency) {
	s.dependencies = append(s.dependencies, dependency)
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start starts every dependency not yet started. After a failed attempt it waits 1, 1, 2, 3, 5...
// units before trying again, up to maxAttempts attempts.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	// Fibonacci backoff sequence
	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = s.startAll(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.unit
		s.logger.Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context) error {
	for _, dependency := range s.dependencies {
		name := dependency.Name()
		if s.statuses[name] == StatusStarted {
			continue
		}

		log := s.logger.WithField("dependency", name)
		log.Infof("Starting dependency '%s'", name)
		if err := dependency.Start(ctx); err != nil {
			s.statuses[name] = StatusFailed
			log.WithError(err).Errorf("Failed to start dependency '%s'", name)
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		s.statuses[name] = StatusStarted
	}
	return nil
}

// Stop stops started dependencies in reverse order, continuing past failures. The first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var first error
	for i := len(s.dependencies) - 1; i >= 0; i-- {
		dependency := s.dependencies[i]
		name := dependency.Name()
		if s.statuses[name] != StatusStarted {
			continue
		}

		log := s.logger.WithField("dependency", name)
		if err := dependency.Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if first == nil {
				first = err
			}
			continue
		}
		s.statuses[name] = StatusStopped
		log.Infof("Dependency '%s' stopped", name)
	}
	return first
}
