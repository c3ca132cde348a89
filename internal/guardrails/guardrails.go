// Package guardrails provides the Quality Gate that validates drafted
// scripts before they are handed to the deployment agent.
//
// The gate evaluates a fixed, ordered set of structural presence rules:
//   - output partitioning: the script must write partitioned output
//   - date derivation: the script must derive a date column
//   - explicit schema: the script must declare its schema
//
// Every rule is evaluated independently; failures are reported in
// declaration order so the same input always yields the same result.
package guardrails

import (
	"fmt"
	"strings"

	"github.com/squadworks/squad/pkg/models"
)

// Rule is a structural presence check. It passes when at least one of its
// markers occurs in the checked text.
type Rule struct {
	ID          string
	Name        string
	AnyOf       []string
	Problem     string
	Remediation string
}

// Evaluate reports whether text satisfies the rule.
func (r Rule) Evaluate(text string) bool {
	for _, marker := range r.AnyOf {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Failure builds the failure record for a violated rule. The message is
// forwarded to the drafting agent as-is.
func (r Rule) Failure() models.Failure {
	return models.Failure{
		RuleID:      r.ID,
		Rule:        r.Name,
		Message:     fmt.Sprintf("[%s] FAIL — %s. %s", r.ID, r.Problem, r.Remediation),
		Remediation: r.Remediation,
	}
}

// ── Built-in Rules ──────────────────────────────────────────

// DefaultRules returns the structural rules for PySpark batch scripts.
// Rule 3 accepts either schema marker.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "RULE 1",
			Name:        "output-partitioning",
			AnyOf:       []string{"partitionBy"},
			Problem:     "'partitionBy' not found",
			Remediation: "Add .write.partitionBy('event_date')",
		},
		{
			ID:          "RULE 2",
			Name:        "date-derivation",
			AnyOf:       []string{"to_date"},
			Problem:     "'to_date' not found",
			Remediation: "Derive event_date using to_date(col('event_timestamp'))",
		},
		{
			ID:          "RULE 3",
			Name:        "explicit-schema",
			AnyOf:       []string{"StructType", "StructField"},
			Problem:     "No explicit schema",
			Remediation: "Define schema using StructType/StructField",
		},
	}
}

// ── Quality Gate ────────────────────────────────────────────

// QualityGate evaluates an ordered rule set. It holds no mutable state and
// is safe for concurrent use.
type QualityGate struct {
	rules []Rule
}

// NewQualityGate creates a gate over rules, or over DefaultRules when none
// are given.
func NewQualityGate(rules ...Rule) *QualityGate {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &QualityGate{rules: owned}
}

// Rules returns a copy of the gate's rules in evaluation order.
func (g *QualityGate) Rules() []Rule {
	out := make([]Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Check runs every rule against text. Passed is true iff no rule failed.
func (g *QualityGate) Check(text string) models.ValidationResult {
	result := models.ValidationResult{
		Passed:   true,
		Failures: make([]models.Failure, 0),
	}

	for _, rule := range g.rules {
		if rule.Evaluate(text) {
			continue
		}
		result.Failures = append(result.Failures, rule.Failure())
		result.Passed = false
	}

	return result
}

// FailureLines returns one remediation instruction per failure, in order.
func FailureLines(result models.ValidationResult) []string {
	lines := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		lines = append(lines, f.Message)
	}
	return lines
}
