// Package score produces risk assessments for transactions.
//
// Two scoring paths share one interface: a CEL-based rule scorer used
// for re-scoring stored transactions, and a model scorer that calls
// the external risk model service on the live analyze path. Both emit
// the same assessment shape.
package score

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Scorer assigns a risk score and explanation to a transaction.
type Scorer interface {
	Score(ctx context.Context, req *domain.AnalyzeRequest) (*domain.Assessment, error)
}

// BaseScore is the floor applied before any feature rule fires.
const BaseScore = 0.1

// FeatureRule is one additive risk signal. Expression is a CEL
// predicate over the transaction; when it evaluates true the rule's
// contribution is added to the score and the rule appears in the
// explanation.
type FeatureRule struct {
	Name         string
	Expression   string
	Contribution float64

	// Value renders the triggering input for the explanation.
	Value func(r *domain.AnalyzeRequest) string
}

// DefaultFeatureRules returns the built-in risk signals.
func DefaultFeatureRules() []FeatureRule {
	return []FeatureRule{
		{
			Name:         "recent_identity",
			Expression:   `has_identity_age && identity_age_hours < 24.0`,
			Contribution: 0.4,
			Value: func(r *domain.AnalyzeRequest) string {
				return fmt.Sprintf("identity verified %.1fh ago", *r.IdentityAgeHours)
			},
		},
		{
			Name:         "large_amount",
			Expression:   `amount > 100000.0`,
			Contribution: 0.3,
			Value: func(r *domain.AnalyzeRequest) string {
				return FormatNaira(r.Amount)
			},
		},
		{
			Name:         "high_risk_corridor",
			Expression:   `location.contains("Lagos") || location.contains("Abuja")`,
			Contribution: 0.2,
			Value: func(r *domain.AnalyzeRequest) string {
				return r.Location
			},
		},
	}
}

type compiledRule struct {
	rule    FeatureRule
	program cel.Program
}

// RuleScorer evaluates feature rules against a transaction and sums
// their contributions onto the base score. Scoring is deterministic:
// the same request always yields the same assessment.
type RuleScorer struct {
	rules []compiledRule
}

// NewRuleScorer compiles the given feature rules. Every expression
// must be a boolean predicate.
func NewRuleScorer(rules []FeatureRule) (*RuleScorer, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("location", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("identity_age_hours", cel.DoubleType),
		cel.Variable("has_identity_age", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &RuleScorer{}
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.Name, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Name, err)
		}
		s.rules = append(s.rules, compiledRule{rule: rule, program: program})
	}
	return s, nil
}

// Score evaluates every feature rule and returns the capped sum of
// contributions. Only triggered rules appear in the explanation.
func (s *RuleScorer) Score(ctx context.Context, req *domain.AnalyzeRequest) (*domain.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	activation := map[string]any{
		"amount":             req.Amount,
		"location":           req.Location,
		"user_id":            req.UserID,
		"device_id":          req.DeviceID,
		"identity_age_hours": 0.0,
		"has_identity_age":   false,
	}
	if req.IdentityAgeHours != nil {
		activation["identity_age_hours"] = *req.IdentityAgeHours
		activation["has_identity_age"] = true
	}

	total := BaseScore
	var features []domain.Feature

	for _, compiled := range s.rules {
		out, _, err := compiled.program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", compiled.rule.Name, err)
		}
		triggered, ok := out.(types.Bool)
		if !ok {
			return nil, fmt.Errorf("rule %s: non-boolean result %v", compiled.rule.Name, out)
		}
		if !bool(triggered) {
			continue
		}

		total += compiled.rule.Contribution
		features = append(features, domain.Feature{
			Name:         compiled.rule.Name,
			Contribution: compiled.rule.Contribution,
			Value:        compiled.rule.Value(req),
		})
	}

	if total > domain.MaxRiskScore {
		total = domain.MaxRiskScore
	}

	return &domain.Assessment{
		RiskScore: total,
		Explanation: domain.Explanation{
			Features: features,
			Summary:  summarize(total, len(features)),
		},
		Recommendation: Recommend(total),
		Source:         domain.SourceRules,
	}, nil
}

// Recommend maps a score to the scorer recommendation vocabulary.
func Recommend(score float64) string {
	switch {
	case score > domain.HighRiskThreshold:
		return domain.RecommendBlock
	case score > domain.ReviewThreshold:
		return domain.RecommendReview
	default:
		return domain.RecommendApprove
	}
}

func summarize(score float64, triggered int) string {
	if triggered == 0 {
		return "no risk signals beyond baseline"
	}
	return fmt.Sprintf("%d risk signals raised the score to %s", triggered, strconv.FormatFloat(score, 'g', -1, 64))
}

// FormatNaira renders an amount with thousands separators, e.g.
// ₦150,000.
func FormatNaira(amount float64) string {
	whole := strconv.FormatFloat(amount, 'f', 0, 64)

	negative := false
	if len(whole) > 0 && whole[0] == '-' {
		negative = true
		whole = whole[1:]
	}

	var grouped []byte
	for i, c := range []byte(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, c)
	}

	if negative {
		return "-₦" + string(grouped)
	}
	return "₦" + string(grouped)
}
