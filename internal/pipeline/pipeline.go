// Package pipeline runs categorization and journal generation as sequences of
// steps over an explicit run state.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/logger"
)

// PipelineStep represents a single step of a run.
type PipelineStep interface {
	Execute(ctx context.Context, state *RunState) error
}

// StepFunc adapts a function to PipelineStep.
type StepFunc func(ctx context.Context, state *RunState) error

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, state *RunState) error {
	return f(ctx, state)
}

// Pipeline executes steps in order, stopping at the first failure.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		start := time.Now()
		name := stepName(step)
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("step", name).Str("session_id", state.SessionID).Msg("Pipeline step failed")
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		log.Debug().Str("step", name).Str("session_id", state.SessionID).Dur("duration", time.Since(start)).Msg("Pipeline step done")
	}
	return nil
}

func stepName(step PipelineStep) string {
	name := fmt.Sprintf("%T", step)
	return strings.TrimPrefix(name, "*pipeline.")
}
