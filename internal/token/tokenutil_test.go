package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateFast(t *testing.T) {
	require.Zero(t, EstimateFast(""))
	require.Zero(t, EstimateFast("   "))
	require.Equal(t, 1, EstimateFast("hi"))

	// long text estimates by rune count
	long := strings.Repeat("abcd ", 100)
	require.GreaterOrEqual(t, EstimateFast(long), 100)
}

func TestCountIsMonotonic(t *testing.T) {
	short := Count("hello world")
	long := Count(strings.Repeat("hello world ", 50))

	require.Greater(t, short, 0)
	require.Greater(t, long, short)
}
