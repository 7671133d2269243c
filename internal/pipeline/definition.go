package pipeline

import (
	"context"
	"encoding/json"

	"github.com/opsgate/triago/pkg/schema"
)

// StepKind discriminates the three step variants.
type StepKind string

const (
	KindTool      StepKind = "tool"
	KindInference StepKind = "inference"
	KindCompute   StepKind = "compute"
)

// ToolCall binds a step to a registered tool. Args builds the invocation
// arguments from prior results; it runs after every earlier step completed.
type ToolCall struct {
	Tool string
	Args func(rc *RunContext) (map[string]any, error)
}

// InferenceCall binds a step to the model. Prompt builds the user prompt from
// prior results; the step's output shape decides between a structured object
// response and plain text.
type InferenceCall struct {
	System string
	Prompt func(rc *RunContext) (string, error)
}

// ComputeFunc is a pure in-process step body.
type ComputeFunc func(ctx context.Context, rc *RunContext) (any, error)

// Step is one named unit of a pipeline. Exactly one of Tool, Inference or
// Compute must be set, matching Kind.
type Step struct {
	Name        string
	Kind        StepKind
	OutputShape json.RawMessage
	Tool        *ToolCall
	Inference   *InferenceCall
	Compute     ComputeFunc
}

// FinalizeFunc folds the accumulated step results into the pipeline output.
type FinalizeFunc func(rc *RunContext) (any, error)

// FailureFunc produces the fallback output of a failed run. It sees the
// results accumulated before the failure; a nil FailureFunc leaves the
// outcome output empty.
type FailureFunc func(rc *RunContext, failedStep string, cause error) any

// Definition is a complete, immutable pipeline description. Definitions are
// built once at startup and shared across runs.
type Definition struct {
	Name        string
	InputShape  json.RawMessage
	OutputShape json.RawMessage
	Steps       []Step
	Finalize    FinalizeFunc
	OnFailure   FailureFunc
}

// validate checks structural soundness before any step runs.
func (d *Definition) validate() error {
	if d.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "pipeline name is empty")
	}
	if len(d.Steps) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "pipeline %s has no steps", d.Name)
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.Name == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "pipeline %s has an unnamed step", d.Name)
		}
		if seen[step.Name] {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate step name %q", step.Name)
		}
		seen[step.Name] = true

		switch step.Kind {
		case KindTool:
			if step.Tool == nil || step.Tool.Tool == "" {
				return schema.NewErrorf(schema.ErrCodeValidation, "tool step %q has no tool binding", step.Name)
			}
		case KindInference:
			if step.Inference == nil || step.Inference.Prompt == nil {
				return schema.NewErrorf(schema.ErrCodeValidation, "inference step %q has no prompt", step.Name)
			}
		case KindCompute:
			if step.Compute == nil {
				return schema.NewErrorf(schema.ErrCodeValidation, "compute step %q has no body", step.Name)
			}
		default:
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q has unknown kind %q", step.Name, step.Kind)
		}
	}
	return nil
}

// wantsObject reports whether a shape declares an object result, which routes
// an inference step to structured output. Any other shape, arrays included,
// gets the plain-text path.
func wantsObject(shape json.RawMessage) bool {
	if len(shape) == 0 {
		return false
	}
	var head struct {
		Type any `json:"type"`
	}
	if err := json.Unmarshal(shape, &head); err != nil {
		return false
	}
	switch t := head.Type.(type) {
	case string:
		return t == "object"
	case []any:
		for _, v := range t {
			if v == "object" {
				return true
			}
		}
	}
	return false
}
