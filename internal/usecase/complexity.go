package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"conductor/internal/domain"
)

// Thresholds for the message-length adjustment, in characters.
const (
	longMessageChars  = 500
	shortMessageChars = 100
	manyToolsCount    = 5
)

var roleBaseline = map[domain.AgentRole]domain.Complexity{
	domain.AgentRoleConversational: domain.ComplexitySimple,
	domain.AgentRoleResearcher:     domain.ComplexityModerate,
	domain.AgentRoleOrchestrator:   domain.ComplexityComplex,
	domain.AgentRoleAutomation:     domain.ComplexityModerate,
}

var (
	simpleQuestionPattern = regexp.MustCompile(`(?i)^\s*(what|who|when|where|which|how much|how many|is|are|can|does|do)\b[^?]{0,200}\?\s*$`)
	arithmeticPattern     = regexp.MustCompile(`\d+(\.\d+)?\s*[-+*/x×÷]\s*\d+(\.\d+)?`)
	planningPattern       = regexp.MustCompile(`(?i)\b(plan|strategy|analy[sz]e|compare|comprehensive|detailed|coordinate|multi-step)\b`)
	criticalPattern       = regexp.MustCompile(`(?i)\b(critical|production|important decision)\b`)
)

// ComplexityInput carries the signals the estimator scores.
type ComplexityInput struct {
	Role      domain.AgentRole
	Hint      domain.Complexity // replaces the role baseline when set
	ToolCount int
	Message   string
}

// EstimateComplexity grades a pending request. It is deterministic and has no
// side effects.
func EstimateComplexity(in ComplexityInput) domain.Complexity {
	base, ok := roleBaseline[in.Role]
	if !ok {
		base = domain.ComplexityModerate
	}
	if in.Hint.Valid() {
		base = in.Hint
	}
	score := int(base)

	if in.ToolCount > manyToolsCount {
		score++
	}

	switch n := utf8.RuneCountInString(in.Message); {
	case n > longMessageChars:
		score++
	case n < shortMessageChars:
		score--
	}

	if isSimpleQuery(in.Message) {
		score--
	}
	if planningPattern.MatchString(in.Message) {
		score++
	}
	if criticalPattern.MatchString(in.Message) {
		score += 2
	}

	return clampComplexity(score)
}

func isSimpleQuery(msg string) bool {
	msg = strings.TrimSpace(msg)
	return simpleQuestionPattern.MatchString(msg) || arithmeticPattern.MatchString(msg)
}

func clampComplexity(score int) domain.Complexity {
	switch {
	case score <= int(domain.ComplexitySimple):
		return domain.ComplexitySimple
	case score >= int(domain.ComplexityCritical):
		return domain.ComplexityCritical
	default:
		return domain.Complexity(score)
	}
}
