package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(ErrUpstream))
	require.True(t, IsTransient(ErrCircuitOpen))
	require.True(t, IsTransient(ErrTooMany))
	require.True(t, IsTransient(fmt.Errorf("%w: embedding provider", ErrUpstream)))
	require.False(t, IsTransient(ErrExtraction))
	require.False(t, IsTransient(nil))
}

func TestIsPermanent(t *testing.T) {
	require.True(t, IsPermanent(ErrExtraction))
	require.True(t, IsPermanent(fmt.Errorf("%w: yielded no text", ErrEmptyDocument)))
	require.True(t, IsPermanent(ErrBudgetExceeded))
	require.False(t, IsPermanent(ErrUpstream))
	require.False(t, IsPermanent(nil))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(fmt.Errorf("%w: document 7", ErrNotFound)))
	require.False(t, IsNotFound(ErrForbidden))
}
