package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/identity"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/pathutil"
)

// DateColumn is the trailing column holding each row's provenance date.
const DateColumn = "date"

// untitledKey names the output of files whose report key is empty.
const untitledKey = "untitled"

// Engine consolidates the exports found under an input root.
type Engine struct {
	input       string
	output      string
	concurrency int
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConcurrency sets how many groups are merged at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Engine reading from input and writing to output.
func New(input, output string, opts ...Option) *Engine {
	e := &Engine{
		input:       input,
		output:      output,
		concurrency: config.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run discovers and merges every report group. Group failures are recorded
// in the returned run and do not make Run fail. Run returns an error only
// when the input root or output directory is unusable, or when ctx is
// canceled; in the latter case the partial run is returned as well.
func (e *Engine) Run(ctx context.Context) (*model.ConsolidationRun, error) {
	run := &model.ConsolidationRun{
		ID:        uuid.NewString(),
		InputRoot: e.input,
		OutputDir: e.output,
		StartedAt: time.Now(),
	}

	if pathutil.Within(e.input, e.output) {
		return nil, fmt.Errorf("%w: %s", ErrOutputContainsInput, e.output)
	}
	groups, found, err := discover(e.input, e.logger, []string{e.output})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.output, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	run.FilesFound = found

	e.logger.Info("starting consolidation",
		"input", e.input,
		"files", found,
		"groups", len(groups),
		"concurrency", e.concurrency,
	)

	// Targets are reserved up front, in discovery order, so that colliding
	// names are suffixed the same way on every run.
	namer := pathutil.NewNamer()
	targets := make([]string, len(groups))
	for i, g := range groups {
		key := g.Key
		if key == "" {
			key = untitledKey
		}
		targets[i] = namer.Reserve(filepath.Join(e.output, identity.OutputName(key)))
	}

	run.Groups = make([]model.GroupResult, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, group := range groups {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				run.Groups[i] = model.GroupResult{
					Key:    group.Key,
					Files:  len(group.Files),
					Errors: []string{gctx.Err().Error()},
				}
				return gctx.Err()
			default:
			}

			res := mergeGroup(gctx, group, targets[i])
			run.Groups[i] = res
			if res.Failed() {
				e.logger.Warn("group consolidated with errors",
					"report", group.Key,
					"rows", res.Rows,
					"errors", len(res.Errors),
				)
				// The error is recorded in the result; other groups go on.
				return nil
			}
			e.logger.Info("group consolidated",
				"report", group.Key,
				"files", res.Files,
				"rows", res.Rows,
				"output", res.Output,
			)
			return nil
		})
	}

	err = g.Wait()
	run.FinishedAt = time.Now()
	e.logger.Info("consolidation complete",
		"groups", len(run.Groups),
		"failed", run.FailedGroups(),
		"rows", run.TotalRows(),
		"elapsed", run.Elapsed(),
	)
	return run, err
}
