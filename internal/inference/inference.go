package inference

import (
	"context"
	"encoding/json"
	"strings"
)

// Inferencer is the generative collaborator consumed by inference steps.
// Implementations wrap a concrete model service; the pipeline engine treats
// any error (including a malformed structured response) as a step failure.
type Inferencer interface {
	// InferText sends a system instruction and prompt, returning the model's
	// plain-text response.
	InferText(ctx context.Context, system, prompt string) (string, error)

	// InferObject sends a system instruction and prompt together with the
	// declared output shape, and decodes the response as a JSON object.
	// Shape conformance is checked by the caller, not here.
	InferObject(ctx context.Context, system, prompt string, shape json.RawMessage) (map[string]any, error)
}

// extractJSON pulls a JSON object out of a model response, tolerating
// surrounding prose and markdown code fences.
func extractJSON(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	obj := make(map[string]any)
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
