package pipeline

import (
	"github.com/opsgate/triago/pkg/schema"
)

// RunContext carries the validated input and the accumulated step results of
// a single run. Results are append-only: a step name is written exactly once,
// and only by the engine after the step's output validated.
type RunContext struct {
	runID    string
	pipeline string
	input    map[string]any
	results  map[string]any
}

func newRunContext(runID, pipeline string, input map[string]any) *RunContext {
	return &RunContext{
		runID:    runID,
		pipeline: pipeline,
		input:    input,
		results:  make(map[string]any),
	}
}

// RunID returns the unique identifier of this run.
func (rc *RunContext) RunID() string { return rc.runID }

// Pipeline returns the name of the running pipeline.
func (rc *RunContext) Pipeline() string { return rc.pipeline }

// Input returns the validated pipeline input.
func (rc *RunContext) Input() map[string]any { return rc.input }

// Result returns the recorded output of a completed step.
func (rc *RunContext) Result(step string) (any, bool) {
	v, ok := rc.results[step]
	return v, ok
}

// ObjectResult returns a completed step's output as a map, for steps whose
// shape declares an object.
func (rc *RunContext) ObjectResult(step string) map[string]any {
	if m, ok := rc.results[step].(map[string]any); ok {
		return m
	}
	return nil
}

// TextResult returns a completed step's output as a string.
func (rc *RunContext) TextResult(step string) string {
	if s, ok := rc.results[step].(string); ok {
		return s
	}
	return ""
}

// record stores a step result, rejecting overwrites.
func (rc *RunContext) record(step string, value any) error {
	if _, exists := rc.results[step]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "result for step %q already recorded", step).
			WithStep(step)
	}
	rc.results[step] = value
	return nil
}
