package compare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectStrategy(t *testing.T) {
	levels := []APILevel{0, APILevelLegacy, APILevelWorkingDiff, APILevelWorkingDiff + 1}
	targets := []Revision{{}, Head, Base, Working, Rev(0), Rev(42)}

	for _, level := range levels {
		for _, target := range targets {
			want := StrategyWorkingDiff
			if level < APILevelWorkingDiff || target.Kind == RevBase {
				want = StrategyRevisionDiff
			}
			assert.Equal(t, want, SelectStrategy(level, target), "level=%d target=%q", level, target)
		}
	}
}

func TestSelectStrategy_Cases(t *testing.T) {
	assert.Equal(t, StrategyRevisionDiff, SelectStrategy(APILevelLegacy, Head))
	assert.Equal(t, StrategyRevisionDiff, SelectStrategy(APILevelLegacy, Base))
	assert.Equal(t, StrategyRevisionDiff, SelectStrategy(APILevelWorkingDiff, Base))
	assert.Equal(t, StrategyWorkingDiff, SelectStrategy(APILevelWorkingDiff, Head))
	assert.Equal(t, StrategyWorkingDiff, SelectStrategy(APILevelWorkingDiff, Rev(3)))
}

func TestStrategy_String(t *testing.T) {
	assert.Equal(t, "revision-diff", StrategyRevisionDiff.String())
	assert.Equal(t, "working-diff", StrategyWorkingDiff.String())
	assert.Equal(t, "none", Strategy(0).String())
}

func TestTracker_StepPollsCancellation(t *testing.T) {
	var steps []string
	tr := &tracker{progress: func(step string, fraction float64) {
		steps = append(steps, step)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, tr.step(ctx, "one", 0.1))
	cancel()
	err := tr.step(ctx, "two", 0.2)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"one"}, steps)
}
