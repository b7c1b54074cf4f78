// Package rules loads externally editable rule files: custom payment
// classification rules with optional CEL guards, and fee rule seeds.
package rules

import (
	"errors"
	"fmt"

	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/google/cel-go/cel"
)

// ErrInvalidGuard is returned when a guard expression does not compile to a boolean
var ErrInvalidGuard = errors.New("rules: invalid guard expression")

// celCostLimit bounds the work a single guard evaluation may do
const celCostLimit = 10000

// newGuardEnv declares the variables a guard expression can read
func newGuardEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("marketplace", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("is_expense", cel.BoolType),
		cel.Variable("order_id", cel.StringType),
		cel.Variable("sub_event", cel.StringType),
	)
}

// CELGuard restricts a classification rule with a CEL expression such as
// `amount < 0.0 && sub_event == "AJUSTE"`
type CELGuard struct {
	expr string
	prg  cel.Program
}

// NewCELGuard compiles expr; it must evaluate to a bool
func NewCELGuard(expr string) (*CELGuard, error) {
	env, err := newGuardEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGuard, expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: %q returns %s, want bool", ErrInvalidGuard, expr, ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGuard, expr, err)
	}
	return &CELGuard{expr: expr, prg: prg}, nil
}

// Expression returns the source expression
func (g *CELGuard) Expression() string {
	return g.expr
}

// Allow evaluates the expression against the subject
func (g *CELGuard) Allow(s payment.Subject) (bool, error) {
	out, _, err := g.prg.Eval(map[string]any{
		"marketplace": string(s.Marketplace),
		"text":        s.Text,
		"amount":      s.Amount.InexactFloat64(),
		"is_expense":  s.IsExpense,
		"order_id":    s.OrderID,
		"sub_event":   string(s.SubEvent),
	})
	if err != nil {
		return false, fmt.Errorf("rules: evaluate %q: %w", g.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rules: %q did not return a bool", g.expr)
	}
	return allowed, nil
}

var _ payment.Guard = (*CELGuard)(nil)
