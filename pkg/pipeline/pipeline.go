// Package pipeline runs the export stages concurrently and reports a combined
// outcome with the commands needed to re-run whatever failed.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage is an independent unit of work
type Stage struct {
	Name string
	// Rerun is the command that repeats this stage alone
	Rerun string
	Run   func(ctx context.Context) error
}

// StageResult is how one stage ended
type StageResult struct {
	Name     string
	Rerun    string
	Err      error
	Duration time.Duration
}

// OK reports whether the stage succeeded
func (r StageResult) OK() bool { return r.Err == nil }

// Status aggregates the stage results
type Status int

const (
	BothSucceeded Status = iota
	PartialFailure
	BothFailed
)

func (s Status) String() string {
	switch s {
	case BothSucceeded:
		return "succeeded"
	case PartialFailure:
		return "partial failure"
	case BothFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of Run
type Outcome struct {
	Status Status
	Stages []StageResult
}

// Err combines the stage errors, or returns nil when every stage succeeded
func (o Outcome) Err() error {
	var err error
	for _, s := range o.Stages {
		if s.Err != nil {
			err = multierr.Append(err, errors.Wrap(s.Err, s.Name))
		}
	}
	return err
}

// Failed returns the stages that did not succeed
func (o Outcome) Failed() []StageResult {
	var out []StageResult
	for _, s := range o.Stages {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Summary describes every stage and how to restart the failed ones. Failed
// stages are never retried automatically.
func (o Outcome) Summary() string {
	var b strings.Builder
	for _, s := range o.Stages {
		if s.OK() {
			fmt.Fprintf(&b, "%s: ok (%s)\n", s.Name, s.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(&b, "%s: FAILED after %s: %v\n", s.Name, s.Duration.Round(time.Millisecond), s.Err)
	}
	switch o.Status {
	case BothSucceeded:
		b.WriteString("all stages succeeded\n")
	case PartialFailure:
		b.WriteString("partial failure, the successful outputs are complete and can be kept\n")
		for _, s := range o.Failed() {
			fmt.Fprintf(&b, "  re-run with: %s\n", s.Rerun)
		}
	case BothFailed:
		b.WriteString("all stages failed, fix the input and re-run with: bddconv export\n")
	}
	return b.String()
}

// Run starts every stage in its own goroutine and waits for all of them,
// whatever happens to the others. Stages share no state and are not
// cancelled when a sibling fails.
func Run(ctx context.Context, logger *zap.SugaredLogger, stages ...Stage) Outcome {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	results := make([]StageResult, len(stages))

	var g errgroup.Group
	for i, st := range stages {
		g.Go(func() error {
			start := time.Now()
			logger.Debugw("stage started", "stage", st.Name)
			err := st.Run(ctx)
			results[i] = StageResult{Name: st.Name, Rerun: st.Rerun, Err: err, Duration: time.Since(start)}
			if err != nil {
				logger.Errorw("stage failed", "stage", st.Name, "error", err)
			} else {
				logger.Infow("stage finished", "stage", st.Name, "duration", results[i].Duration)
			}
			// errors are kept per stage so the group never short-circuits
			return nil
		})
	}
	_ = g.Wait()

	return Outcome{Status: classify(results), Stages: results}
}

func classify(results []StageResult) Status {
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return BothSucceeded
	case failed == len(results):
		return BothFailed
	default:
		return PartialFailure
	}
}
