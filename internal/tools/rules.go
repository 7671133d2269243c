package tools

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/opsgate/triago/pkg/schema"
)

// OwnershipRule maps resources matching a boolean expression to an owner.
// Expressions evaluate over a single variable, resourceId.
type OwnershipRule struct {
	When  string `json:"when"`
	Owner string `json:"owner"`
}

// DefaultOwnershipRules assigns ownership by environment marker in the
// resource identifier.
func DefaultOwnershipRules() []OwnershipRule {
	return []OwnershipRule{
		{When: `resourceId contains "prod"`, Owner: "securityTeam"},
		{When: `resourceId contains "dev"`, Owner: "alice"},
		{When: `resourceId contains "test"`, Owner: "bob"},
		{When: `resourceId contains "stage"`, Owner: "charlie"},
	}
}

type compiledRule struct {
	program *vm.Program
	owner   string
}

// RuleSet is an ordered list of compiled ownership rules. It implements
// OwnerDirectory; the first matching rule wins.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles the given rules. Compilation failures surface
// immediately so a bad expression cannot hide until lookup time.
func NewRuleSet(rules []OwnershipRule) (*RuleSet, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		program, err := expr.Compile(rule.When,
			expr.Env(map[string]any{"resourceId": ""}),
			expr.AsBool(),
		)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid ownership rule %q", rule.When).
				WithCause(err)
		}
		compiled = append(compiled, compiledRule{program: program, owner: rule.Owner})
	}
	return &RuleSet{rules: compiled}, nil
}

// LookupOwner implements OwnerDirectory.
func (r *RuleSet) LookupOwner(_ context.Context, resourceID string) (string, bool, error) {
	env := map[string]any{"resourceId": resourceID}

	for _, rule := range r.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			return "", false, schema.NewError(schema.ErrCodeInternal, "ownership rule evaluation failed").
				WithCause(err)
		}
		if matched, ok := out.(bool); ok && matched {
			return rule.owner, true, nil
		}
	}
	return "", false, nil
}
