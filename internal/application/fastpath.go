package application

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"voice-bridge/internal/domain"
)

var (
	temperatureQuery = regexp.MustCompile(`\b(temp|temperature|how (hot|warm|cold))\b`)
	poolWord         = regexp.MustCompile(`\bpool\b`)
	prefixImperative = regexp.MustCompile(`^turn (on|off) (.+)$`)
	suffixImperative = regexp.MustCompile(`^(.+) (on|off)$`)
)

var (
	switchableCategories = []string{"light", "switch"}
	sensorCategories     = []string{"sensor"}
	poolTemperatureTerms = []string{"pool temperature", "pool temp"}
	questionWords        = []string{"what", "whats", "what's", "is", "are"}
)

const maxSuffixTargetWords = 6

// Matcher recognizes a closed set of common command shapes without the LLM.
type Matcher struct {
	resolver   EntityResolver
	thresholds *Thresholds
	logger     *slog.Logger
}

func NewMatcher(resolver EntityResolver, thresholds *Thresholds, logger *slog.Logger) *Matcher {
	return &Matcher{resolver: resolver, thresholds: thresholds, logger: logger}
}

// Match tries each rule in order against an already normalized utterance.
// A rule whose entity cannot be resolved yields no plan.
func (m *Matcher) Match(ctx context.Context, normalized string) (*domain.Plan, bool) {
	if normalized == "" {
		return nil, false
	}

	if temperatureQuery.MatchString(normalized) && poolWord.MatchString(normalized) {
		return m.matchPoolTemperature(ctx)
	}

	if sm := prefixImperative.FindStringSubmatch(normalized); sm != nil {
		return m.matchSwitch(ctx, sm[2], sm[1])
	}

	if sm := suffixImperative.FindStringSubmatch(normalized); sm != nil {
		target := sm[1]
		if isQuestion(target) || len(strings.Fields(target)) > maxSuffixTargetWords {
			return nil, false
		}
		return m.matchSwitch(ctx, target, sm[2])
	}

	return nil, false
}

func (m *Matcher) matchPoolTemperature(ctx context.Context) (*domain.Plan, bool) {
	for _, term := range poolTemperatureTerms {
		id := m.resolve(ctx, sensorCategories, term)
		if id == "" {
			continue
		}
		return domain.NewPlan(domain.Action{
			Name:  domain.ActionReadState,
			Input: domain.ActionInput{EntityID: id},
		}), true
	}
	return nil, false
}

func (m *Matcher) matchSwitch(ctx context.Context, target, onOff string) (*domain.Plan, bool) {
	id := m.resolve(ctx, switchableCategories, target)
	if id == "" {
		return nil, false
	}

	operation := domain.OperationTurnOff
	if onOff == "on" {
		operation = domain.OperationTurnOn
	}

	return domain.NewPlan(domain.Action{
		Name: domain.ActionCallService,
		Input: domain.ActionInput{
			Category:  domain.CategoryOf(id),
			Operation: operation,
			EntityID:  id,
		},
	}), true
}

func (m *Matcher) resolve(ctx context.Context, categories []string, search string) string {
	minScore := m.thresholds.For(search, categories)
	id, err := m.resolver.ResolveEntityID(ctx, categories, search, minScore)
	if err != nil {
		m.logger.Warn("fast path resolution failed", "search", search, "error", err)
		return ""
	}
	return id
}

func isQuestion(target string) bool {
	first, _, _ := strings.Cut(target, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}
