package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrPersistence, "commit failed").
		WithCause(root).
		WithHTTPStatus(500).
		WithRetryable(true)

	assert.Equal(t, ErrPersistence, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[PERSISTENCE_ERROR] commit failed: root", err.Error())
}

func TestError_WrappedChain(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("run execution 7: %w", NewNotFoundError("workflow", 3))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "workflow 3 not found", e.Message)
	assert.True(t, IsCode(wrapped, ErrNotFound))
	assert.False(t, IsRetryable(wrapped))
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *Error
		code      ErrorCode
		retryable bool
	}{
		{"configuration", NewConfigurationError("unknown node type %q", "ocr"), ErrConfiguration, false},
		{"processing", NewProcessingError("resize failed", errors.New("boom")), ErrProcessing, false},
		{"persistence", NewPersistenceError("insert data", errors.New("locked")), ErrPersistence, true},
		{"invalid state", NewInvalidStateError("execution %d is %s", 1, "completed"), ErrInvalidState, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.NotEmpty(t, tt.err.Error())
		})
	}

	assert.Equal(t, `[CONFIGURATION_ERROR] unknown node type "ocr"`, NewConfigurationError("unknown node type %q", "ocr").Error())
}

func TestAsError_PlainError(t *testing.T) {
	t.Parallel()

	_, ok := AsError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}
