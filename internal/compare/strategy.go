package compare

import (
	"context"
	"fmt"
	"path/filepath"
)

// Strategy is the backend compatibility strategy used to gather the change sets
type Strategy int

const (
	// StrategyRevisionDiff runs a status scan and one repository diff per revision
	StrategyRevisionDiff Strategy = iota + 1
	// StrategyWorkingDiff runs a status scan and a single diff against the working copy
	StrategyWorkingDiff
)

func (s Strategy) String() string {
	switch s {
	case StrategyRevisionDiff:
		return "revision-diff"
	case StrategyWorkingDiff:
		return "working-diff"
	default:
		return "none"
	}
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SelectStrategy picks the revision diff strategy for legacy backends and for
// comparisons against the working copy base, and the working diff otherwise.
func SelectStrategy(level APILevel, target Revision) Strategy {
	if level < APILevelWorkingDiff || target.Kind == RevBase {
		return StrategyRevisionDiff
	}
	return StrategyWorkingDiff
}

// ProgressFunc receives the name of the step about to run and the completed fraction
type ProgressFunc func(step string, fraction float64)

type tracker struct {
	progress ProgressFunc
}

// step polls cancellation and reports progress before a step starts
func (t *tracker) step(ctx context.Context, name string, fraction float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if t.progress != nil {
		t.progress(name, fraction)
	}
	return nil
}

func relPath(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
