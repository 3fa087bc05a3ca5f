package application

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const DefaultMinScore = 4

// ThresholdRule lowers or raises the resolution threshold for targets that
// satisfy When, an expr-lang boolean expression over ThresholdEnv.
type ThresholdRule struct {
	When     string
	MinScore int
}

// ThresholdEnv is the environment threshold expressions are evaluated in.
type ThresholdEnv struct {
	Target     string   `expr:"Target"`
	Categories []string `expr:"Categories"`
}

// DefaultThresholdRules favours terse pool-equipment names, which score
// lower because they have fewer tokens to match.
func DefaultThresholdRules() []ThresholdRule {
	return []ThresholdRule{
		{When: `Target contains "pool"`, MinScore: 3},
	}
}

type compiledRule struct {
	source   string
	program  *vm.Program
	minScore int
}

// Thresholds picks the minimum score for a resolution. The first matching
// rule wins; otherwise the default applies.
type Thresholds struct {
	rules    []compiledRule
	fallback int
	logger   *slog.Logger
}

func NewThresholds(defaultMinScore int, rules []ThresholdRule, logger *slog.Logger) (*Thresholds, error) {
	if defaultMinScore <= 0 {
		defaultMinScore = DefaultMinScore
	}
	t := &Thresholds{fallback: defaultMinScore, logger: logger}
	for _, r := range rules {
		program, err := expr.Compile(r.When, expr.Env(ThresholdEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling threshold rule %q: %w", r.When, err)
		}
		t.rules = append(t.rules, compiledRule{source: r.When, program: program, minScore: r.MinScore})
	}
	return t, nil
}

func (t *Thresholds) For(target string, categories []string) int {
	env := ThresholdEnv{Target: target, Categories: categories}
	for _, r := range t.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			t.logger.Warn("threshold rule failed", "rule", r.source, "error", err)
			continue
		}
		if matched, _ := out.(bool); matched {
			return r.minScore
		}
	}
	return t.fallback
}
