package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeValidation, "input does not conform")
	assert.Equal(t, "[VALIDATION_ERROR] input does not conform", err.Error())

	err = err.WithStep("analyze_security_finding")
	assert.Equal(t, "[VALIDATION_ERROR] step analyze_security_finding: input does not conform", err.Error())
}

func TestErrorf(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "tool %q not registered", "github.create_issue")
	assert.Equal(t, `[NOT_FOUND] tool "github.create_issue" not registered`, err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCodeStore, "store daily bucket").WithCause(cause)

	require.ErrorIs(t, err, cause)

	var terr *TriagoError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ErrCodeStore, terr.Code)
}

func TestKnownSeverity(t *testing.T) {
	for _, s := range []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		assert.True(t, KnownSeverity(s), s)
	}
	assert.False(t, KnownSeverity("UNKNOWN"))
	assert.False(t, KnownSeverity("high"))
}
