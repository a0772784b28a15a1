package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// sagaStep is one side effect of a multi-step operation. compensate undoes
// run and is nil for steps that cannot be undone.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// StepError identifies the saga step that failed
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

// saga runs steps in order. When a step fails, the compensations of the
// steps that already completed run in reverse order.
type saga struct {
	name    string
	steps   []sagaStep
	logger  *zap.Logger
	observe func(step string, d time.Duration)
}

func (s *saga) execute(ctx context.Context) error {
	for i, step := range s.steps {
		start := time.Now()
		err := step.run(ctx)
		if s.observe != nil {
			s.observe(step.name, time.Since(start))
		}
		if err == nil {
			continue
		}

		s.compensate(ctx, s.steps[:i])
		return &StepError{Step: step.name, Err: err}
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, done []sagaStep) {
	// Compensation must run even if the caller went away
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("saga", s.name),
				zap.String("step", step.name),
				zap.Error(err))
			continue
		}
		s.logger.Info("Compensated step", zap.String("saga", s.name), zap.String("step", step.name))
	}
}
