package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/dashcsv/internal/model"
)

// Step is one stage of an export session.
type Step interface {
	// Do runs the step. Non-critical problems are recorded in run and
	// logged; a returned error ends the session.
	Do(ctx context.Context, run *model.ExportRun) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after a step fails. The
// first error is still recorded in the run and returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps against run and sets run.FinishedAt when done.
// Cancellation is checked between steps; steps bound their own waits.
func (p *Pipeline) Execute(ctx context.Context, run *model.ExportRun) error {
	defer func() {
		run.FinishedAt = time.Now()
	}()

	var first error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("session canceled", "step", step.Name(), "reason", err)
			if first == nil {
				run.Error = err.Error()
				first = err
			}
			return first
		}

		p.logger.Debug("executing step", "step", step.Name(), "url", run.URL)
		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "url", run.URL, "error", err)
			if first == nil {
				run.Error = err.Error()
				first = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}
		p.logger.Debug("step completed", "step", step.Name())
	}
	return first
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
