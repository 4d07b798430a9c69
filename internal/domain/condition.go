package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ConditionTarget names the computation stage a condition modifies.
type ConditionTarget string

const (
	TargetSubtotal ConditionTarget = "subtotal"
	TargetTotal    ConditionTarget = "total"
	TargetItem     ConditionTarget = "item"
)

// Condition value operators, parsed from the value expression.
const (
	OperatorAdd      = "+"
	OperatorSubtract = "-"
	OperatorMultiply = "*"
	OperatorDivide   = "/"
	OperatorPercent  = "%"
)

// CartCondition is an immutable, named, ordered price modifier. The value
// expression encodes the operator: a trailing "%" makes it a percentage,
// a leading "+", "-", "*" or "/" selects arithmetic against the absolute
// parsed value, and an unprefixed number defaults to "+".
//
// A condition carrying rules is dynamic: it only applies while every rule
// evaluates true against the current cart state.
type CartCondition struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Target     ConditionTarget        `json:"target"`
	Value      string                 `json:"value"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Order      int                    `json:"order"`
	Rules      []Rule                 `json:"rules,omitempty"`
}

// NewCondition validates and returns a condition. Construction is the
// contract boundary: a malformed condition never reaches a cart.
func NewCondition(c CartCondition) (CartCondition, error) {
	if err := c.Validate(); err != nil {
		return CartCondition{}, err
	}
	return c, nil
}

// Validate checks the construction invariants without building a copy.
func (c CartCondition) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &InvalidCartConditionError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(c.Type) == "" {
		return &InvalidCartConditionError{Field: "type", Reason: "required"}
	}
	switch c.Target {
	case TargetSubtotal, TargetTotal, TargetItem:
	default:
		return &InvalidCartConditionError{Field: "target", Reason: "must be subtotal, total or item"}
	}
	if strings.TrimSpace(c.Value) == "" {
		return &InvalidCartConditionError{Field: "value", Reason: "required"}
	}
	if _, _, err := parseValue(c.Value); err != nil {
		return err
	}
	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Operator returns the operator encoded in the value expression.
func (c CartCondition) Operator() string {
	op, _, err := parseValue(c.Value)
	if err != nil {
		return OperatorAdd
	}
	return op
}

// ParsedValue returns the numeric part of the value expression. For
// percentages this is the percent points (signed); for arithmetic operators
// it keeps the sign as written, Apply works against the absolute value.
func (c CartCondition) ParsedValue() decimal.Decimal {
	_, v, err := parseValue(c.Value)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// IsPercentage reports whether the value expression ends in "%".
func (c CartCondition) IsPercentage() bool {
	return c.Operator() == OperatorPercent
}

// IsDiscount is true for "-" conditions and negative percentages.
func (c CartCondition) IsDiscount() bool {
	op, v, err := parseValue(c.Value)
	if err != nil {
		return false
	}
	return op == OperatorSubtract || (op == OperatorPercent && v.IsNegative())
}

// IsCharge is true for "+" conditions and positive percentages.
// Multiplicative and divisive conditions are neither discount nor charge.
func (c CartCondition) IsCharge() bool {
	op, v, err := parseValue(c.Value)
	if err != nil {
		return false
	}
	return op == OperatorAdd || (op == OperatorPercent && v.IsPositive())
}

// IsDynamic reports whether the condition is gated by rules.
func (c CartCondition) IsDynamic() bool {
	return len(c.Rules) > 0
}

// Apply folds the condition into a base value.
func (c CartCondition) Apply(base decimal.Decimal) decimal.Decimal {
	op, v, err := parseValue(c.Value)
	if err != nil {
		return base
	}
	switch op {
	case OperatorPercent:
		return base.Add(base.Mul(v).Div(decimal.NewFromInt(100)))
	case OperatorSubtract:
		return base.Sub(v.Abs())
	case OperatorMultiply:
		return base.Mul(v.Abs())
	case OperatorDivide:
		if v.IsZero() {
			// Dividing by a zero-valued condition is a no-op, not an error.
			return base
		}
		return base.Div(v.Abs())
	default:
		return base.Add(v.Abs())
	}
}

// ShouldApply evaluates the rule set against cart state. Static conditions
// always apply; dynamic conditions AND-reduce their rules, short-circuiting
// on the first false.
func (c CartCondition) ShouldApply(state CartState, item *CartItem) bool {
	for _, r := range c.Rules {
		if !r.Evaluate(state, item) {
			return false
		}
	}
	return true
}

// ConditionPatch describes field overrides for With. Nil fields keep the
// current value.
type ConditionPatch struct {
	Name       *string
	Type       *string
	Target     *ConditionTarget
	Value      *string
	Order      *int
	Attributes map[string]interface{}
	Rules      []Rule
	ClearRules bool
}

// With returns a new condition merging the patch over the current fields.
func (c CartCondition) With(p ConditionPatch) CartCondition {
	out := c
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Target != nil {
		out.Target = *p.Target
	}
	if p.Value != nil {
		out.Value = *p.Value
	}
	if p.Order != nil {
		out.Order = *p.Order
	}
	if p.Attributes != nil {
		out.Attributes = p.Attributes
	}
	if p.ClearRules {
		out.Rules = nil
	} else if p.Rules != nil {
		out.Rules = p.Rules
	}
	return out
}

// WithoutRules returns the static copy applied to a cart once a dynamic
// condition's rules pass.
func (c CartCondition) WithoutRules() CartCondition {
	out := c
	out.Rules = nil
	return out
}

func parseValue(raw string) (string, decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", decimal.Zero, &InvalidCartConditionError{Field: "value", Reason: "required"}
	}
	if strings.HasSuffix(s, "%") {
		num := strings.TrimSpace(strings.TrimSuffix(s, "%"))
		v, err := decimal.NewFromString(num)
		if err != nil {
			return "", decimal.Zero, &InvalidCartConditionError{Field: "value", Reason: "not a number: " + raw}
		}
		return OperatorPercent, v, nil
	}
	op := OperatorAdd
	num := s
	switch s[0] {
	case '+', '-', '*', '/':
		op = string(s[0])
		num = strings.TrimSpace(s[1:])
	}
	v, err := decimal.NewFromString(num)
	if err != nil {
		return "", decimal.Zero, &InvalidCartConditionError{Field: "value", Reason: "not a number: " + raw}
	}
	if op == OperatorSubtract && v.IsNegative() {
		// "-" followed by a negative literal still subtracts: the explicit
		// operator drives direction, not the sign.
		v = v.Abs()
	}
	return op, v, nil
}
