package agent

// Outcome is the structured result of a bounded convergence loop: either
// the observed count held stable long enough, or the iteration budget ran
// out first.
type Outcome struct {
	Converged  bool `json:"converged"`
	Iterations int  `json:"iterations"`
	FinalCount int  `json:"final_count"`
}

// converge repeats step until the count it reports is unchanged for
// stableThreshold consecutive iterations, or maxIterations is reached.
// Replaces sleep-and-recheck polling with an explicit stop condition.
func converge(maxIterations, stableThreshold int, step func(iteration int) (int, error)) (Outcome, error) {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	if stableThreshold <= 0 {
		stableThreshold = 2
	}

	prev := -1
	stable := 0

	for i := 0; i < maxIterations; i++ {
		count, err := step(i)
		if err != nil {
			return Outcome{Iterations: i, FinalCount: max(prev, 0)}, err
		}

		if count == prev {
			stable++
			if stable >= stableThreshold {
				return Outcome{Converged: true, Iterations: i + 1, FinalCount: count}, nil
			}
		} else {
			stable = 0
		}
		prev = count
	}

	return Outcome{Converged: false, Iterations: maxIterations, FinalCount: max(prev, 0)}, nil
}
