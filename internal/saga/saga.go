// Package saga runs a sequence of side-effecting steps and undoes the
// completed ones, newest first, when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Action func(ctx context.Context) error

// StepError identifies the step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type compensation struct {
	step string
	undo Action
}

// Saga is not safe for concurrent use; one saga belongs to one operation.
type Saga struct {
	name       string
	logger     *zap.Logger
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	completed []string
	stack     []compensation
}

type Option func(*Saga)

// WithTimeout bounds each compensation attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Saga) { s.timeout = d }
}

func WithRetries(n int, delay time.Duration) Option {
	return func(s *Saga) {
		s.maxRetries = n
		s.retryDelay = delay
	}
}

func New(name string, logger *zap.Logger, opts ...Option) *Saga {
	s := &Saga{
		name:       name,
		logger:     logger,
		timeout:    10 * time.Second,
		maxRetries: 2,
		retryDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step runs action. On success the compensation, if any, is pushed onto the
// stack; on failure nothing is pushed and a *StepError is returned.
func (s *Saga) Step(ctx context.Context, step string, action, compensate Action) error {
	if err := action(ctx); err != nil {
		return &StepError{Step: step, Err: err}
	}
	s.completed = append(s.completed, step)
	if compensate != nil {
		s.stack = append(s.stack, compensation{step: step, undo: compensate})
	}
	return nil
}

// Defer registers a compensation for work already done outside Step.
func (s *Saga) Defer(step string, compensate Action) {
	s.stack = append(s.stack, compensation{step: step, undo: compensate})
}

func (s *Saga) Completed() []string {
	return append([]string(nil), s.completed...)
}

// Compensate runs every registered compensation in reverse order. A failing
// compensation does not stop the rest; all failures are joined. The stack is
// empty afterwards.
func (s *Saga) Compensate(ctx context.Context) error {
	stack := s.stack
	s.stack = nil

	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		c := stack[i]
		if err := s.runWithRetry(ctx, c); err != nil {
			s.logger.Error("compensation failed",
				zap.String("saga", s.name),
				zap.String("step", c.step),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("undo %s: %w", c.step, err))
			continue
		}
		s.logger.Info("compensated step",
			zap.String("saga", s.name),
			zap.String("step", c.step))
	}
	return errors.Join(errs...)
}

func (s *Saga) runWithRetry(ctx context.Context, c compensation) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		lastErr = c.undo(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
