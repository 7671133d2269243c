package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/triago/internal/inference"
	"github.com/opsgate/triago/internal/logging"
	"github.com/opsgate/triago/internal/tools"
	"github.com/opsgate/triago/internal/validation"
	"github.com/opsgate/triago/pkg/schema"
)

// Engine runs pipeline definitions. Steps execute strictly in declaration
// order; the first failure stops the run, records the remaining steps as
// skipped and hands the accumulated results to the definition's failure
// reducer.
type Engine struct {
	registry   *tools.Registry
	inferencer inference.Inferencer
	validator  *validation.ShapeValidator
	logger     *slog.Logger
}

// NewEngine creates an Engine with the given collaborators.
func NewEngine(registry *tools.Registry, inferencer inference.Inferencer, validator *validation.ShapeValidator, logger *slog.Logger) *Engine {
	return &Engine{
		registry:   registry,
		inferencer: inferencer,
		validator:  validator,
		logger:     logger,
	}
}

// Run executes a definition against an input. The input is validated before
// any step runs; a validation failure is returned as an error and no Outcome
// is produced. Step failures do not return an error: they are reported
// through the failed Outcome.
func (e *Engine) Run(ctx context.Context, def *Definition, input map[string]any) (*Outcome, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "pipeline definition is nil")
	}
	if err := def.validate(); err != nil {
		return nil, err
	}

	if err := e.validator.Validate(input, def.InputShape); err != nil {
		return nil, toTriago(err, schema.ErrCodeValidation)
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithPipeline(ctx, def.Name)

	rc := newRunContext(runID, def.Name, input)
	outcome := &Outcome{
		RunID:     runID,
		Pipeline:  def.Name,
		StartedAt: time.Now().UTC(),
		Steps:     make(map[string]*StepRecord, len(def.Steps)),
	}

	e.logger.InfoContext(ctx, "pipeline started", slog.Int("steps", len(def.Steps)))

	for i, step := range def.Steps {
		stepCtx := logging.WithStep(ctx, step.Name)
		started := time.Now()

		output, err := e.runStep(stepCtx, rc, &step)
		record := &StepRecord{
			Name:       step.Name,
			DurationMs: time.Since(started).Milliseconds(),
		}
		outcome.Steps[step.Name] = record

		if err != nil {
			stepErr := toTriago(err, schema.ErrCodeStepFailed).WithStep(step.Name)
			record.Status = StepFailed
			record.Error = stepErr

			e.logger.ErrorContext(stepCtx, "step failed", slog.String("error", stepErr.Message))

			for _, rest := range def.Steps[i+1:] {
				outcome.Steps[rest.Name] = &StepRecord{Name: rest.Name, Status: StepSkipped}
			}
			return e.fail(ctx, def, rc, outcome, step.Name, stepErr), nil
		}

		record.Status = StepCompleted
		record.Output = output
		if err := rc.record(step.Name, output); err != nil {
			return nil, err
		}

		e.logger.DebugContext(stepCtx, "step completed", slog.Int64("duration_ms", record.DurationMs))
	}

	output, err := e.finalize(ctx, def, rc)
	if err != nil {
		finErr := toTriago(err, schema.ErrCodeStepFailed)
		return e.fail(ctx, def, rc, outcome, "finalize", finErr), nil
	}

	outcome.Status = RunSucceeded
	outcome.Output = output
	outcome.CompletedAt = time.Now().UTC()

	e.logger.InfoContext(ctx, "pipeline succeeded",
		slog.Int64("duration_ms", outcome.CompletedAt.Sub(outcome.StartedAt).Milliseconds()),
	)
	return outcome, nil
}

// runStep dispatches on the step kind and validates the result against the
// step's declared shape before it becomes visible to later steps.
func (e *Engine) runStep(ctx context.Context, rc *RunContext, step *Step) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "run canceled").WithCause(err)
	}

	var (
		output any
		err    error
	)
	switch step.Kind {
	case KindTool:
		output, err = e.runToolStep(ctx, rc, step)
	case KindInference:
		output, err = e.runInferenceStep(ctx, rc, step)
	case KindCompute:
		output, err = step.Compute(ctx, rc)
	}
	if err != nil {
		return nil, err
	}

	if err := e.validator.Validate(output, step.OutputShape); err != nil {
		return nil, err
	}
	return output, nil
}

func (e *Engine) runToolStep(ctx context.Context, rc *RunContext, step *Step) (any, error) {
	args := map[string]any{}
	if step.Tool.Args != nil {
		built, err := step.Tool.Args(rc)
		if err != nil {
			return nil, err
		}
		args = built
	}

	tool, err := e.registry.Get(step.Tool.Tool)
	if err != nil {
		return nil, err
	}
	return tool.Invoke(ctx, args)
}

func (e *Engine) runInferenceStep(ctx context.Context, rc *RunContext, step *Step) (any, error) {
	prompt, err := step.Inference.Prompt(rc)
	if err != nil {
		return nil, err
	}

	if wantsObject(step.OutputShape) {
		return e.inferencer.InferObject(ctx, step.Inference.System, prompt, step.OutputShape)
	}
	return e.inferencer.InferText(ctx, step.Inference.System, prompt)
}

// finalize folds the results into the pipeline output and validates it. With
// no finalizer the raw result map is the output.
func (e *Engine) finalize(_ context.Context, def *Definition, rc *RunContext) (any, error) {
	var (
		output any
		err    error
	)
	if def.Finalize != nil {
		output, err = def.Finalize(rc)
		if err != nil {
			return nil, err
		}
	} else {
		output = rc.results
	}

	if err := e.validator.Validate(output, def.OutputShape); err != nil {
		return nil, err
	}
	return output, nil
}

// fail closes out a failed run, applying the failure reducer when present.
// The reducer's output is held to the same output shape as a successful run;
// a nonconforming fallback is discarded and reported instead of handed back
// garbled.
func (e *Engine) fail(ctx context.Context, def *Definition, rc *RunContext, outcome *Outcome, failedStep string, cause *schema.TriagoError) *Outcome {
	outcome.Status = RunFailed
	outcome.FailedStep = failedStep
	outcome.Error = cause
	outcome.CompletedAt = time.Now().UTC()

	if def.OnFailure != nil {
		fallback := def.OnFailure(rc, failedStep, cause)
		if err := e.validator.Validate(fallback, def.OutputShape); err != nil {
			verr := toTriago(err, schema.ErrCodeValidation)
			e.logger.ErrorContext(ctx, "failure output does not conform to output shape",
				slog.String("error", verr.Message),
			)
			outcome.Error = verr.WithCause(cause)
		} else {
			outcome.Output = fallback
		}
	}

	e.logger.ErrorContext(ctx, "pipeline failed",
		slog.String("failed_step", failedStep),
		slog.String("code", cause.Code),
	)
	return outcome
}

// toTriago preserves structured errors and wraps everything else.
func toTriago(err error, code string) *schema.TriagoError {
	var terr *schema.TriagoError
	if errors.As(err, &terr) {
		return terr
	}
	return schema.NewError(code, err.Error()).WithCause(err)
}
