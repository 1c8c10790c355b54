package tester

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Eq asserts that got equals want (deep equality for non-comparable types).
func Eq[T any](t *testing.T, got, want T, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, want, got, msgAndArgs...)
}

// True asserts that cond is true.
func True(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	require.True(t, cond, msgAndArgs...)
}

// False asserts that cond is false.
func False(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	require.False(t, cond, msgAndArgs...)
}

// NoErr asserts that err is nil.
func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// ErrIs asserts that err matches target via errors.Is.
func ErrIs(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	require.ErrorIs(t, err, target, msgAndArgs...)
}
