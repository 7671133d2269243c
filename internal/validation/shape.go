package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/opsgate/triago/pkg/schema"
)

// ShapeValidator validates values against JSON Schema Draft 2020-12 shapes.
// Compiled schemas are cached by their raw bytes. Safe for concurrent use.
type ShapeValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewShapeValidator creates an empty ShapeValidator.
func NewShapeValidator() *ShapeValidator {
	return &ShapeValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate checks value against shape. An empty shape means no validation.
// On failure the returned error is a *schema.TriagoError carrying every
// violated instance path in its details, not just the first.
func (v *ShapeValidator) Validate(value any, shape json.RawMessage) error {
	if len(shape) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(shape)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid shape declaration").WithCause(err)
	}

	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize value").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toValidationError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *ShapeValidator) getOrCompile(shape json.RawMessage) (*jsonschema.Schema, error) {
	key := string(shape)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal shape: %w", err)
	}

	// Each shape gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("triago://shape/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add shape resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile shape: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toValidationError converts a jsonschema.ValidationError into a TriagoError
// carrying the complete list of leaf violations.
func toValidationError(err error) *schema.TriagoError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
