package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvergeStableCount(t *testing.T) {
	counts := []int{3, 6, 9, 9, 9}
	calls := 0

	outcome, err := converge(10, 2, func(i int) (int, error) {
		count := counts[calls]
		calls++
		return count, nil
	})
	require.NoError(t, err)

	require.True(t, outcome.Converged)
	require.Equal(t, 9, outcome.FinalCount)
	require.Equal(t, 5, outcome.Iterations)
}

func TestConvergeBudgetExhausted(t *testing.T) {
	count := 0

	outcome, err := converge(4, 2, func(i int) (int, error) {
		count += 5
		return count, nil
	})
	require.NoError(t, err)

	require.False(t, outcome.Converged)
	require.Equal(t, 4, outcome.Iterations)
	require.Equal(t, 20, outcome.FinalCount)
}

func TestConvergeStepError(t *testing.T) {
	stepErr := errors.New("page went away")

	outcome, err := converge(10, 2, func(i int) (int, error) {
		if i == 2 {
			return 0, stepErr
		}
		return 7, nil
	})
	require.ErrorIs(t, err, stepErr)
	require.Equal(t, 2, outcome.Iterations)
	require.Equal(t, 7, outcome.FinalCount)
}

func TestConvergeDefaults(t *testing.T) {
	calls := 0

	outcome, err := converge(0, 0, func(i int) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)

	// Zero budgets fall back to sane bounds instead of looping forever.
	require.True(t, outcome.Converged)
	require.LessOrEqual(t, calls, 10)
}
