package alerts

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operator is a condition comparison. The zero value is not a valid operator;
// operators are only obtained through ParseOperator.
type Operator uint8

const (
	opInvalid Operator = iota
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpEQ
	OpNEQ
	OpContains
	OpIn
)

//nolint:gochecknoglobals // operator spellings accepted in stored rules
var operatorNames = map[string]Operator{
	">":        OpGT,
	"gt":       OpGT,
	">=":       OpGTE,
	"gte":      OpGTE,
	"<":        OpLT,
	"lt":       OpLT,
	"<=":       OpLTE,
	"lte":      OpLTE,
	"==":       OpEQ,
	"=":        OpEQ,
	"eq":       OpEQ,
	"!=":       OpNEQ,
	"neq":      OpNEQ,
	"contains": OpContains,
	"in":       OpIn,
}

// ParseOperator maps a stored operator to its Operator.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return opInvalid, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
	}

	return op, nil
}

func (o Operator) String() string {
	switch o {
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpEQ:
		return "=="
	case OpNEQ:
		return "!="
	case OpContains:
		return "contains"
	case OpIn:
		return "in"
	case opInvalid:
	}

	return "invalid"
}

// Condition is a validated (field, operator, threshold) triple.
type Condition struct {
	field     string
	op        Operator
	threshold any
	number    float64 // threshold for ordered comparisons
	members   []any   // threshold for in
}

// NewCondition validates a condition. Unknown operators, non-numeric
// thresholds for ordered comparisons and non-list thresholds for "in" are
// rejected.
func NewCondition(field, operator string, threshold any) (Condition, error) {
	if strings.TrimSpace(field) == "" {
		return Condition{}, ErrEmptyField
	}

	op, err := ParseOperator(operator)
	if err != nil {
		return Condition{}, err
	}

	c := Condition{field: field, op: op, threshold: threshold}

	switch op {
	case OpGT, OpGTE, OpLT, OpLTE:
		n, ok := toFloat64(threshold)
		if !ok {
			return Condition{}, fmt.Errorf("%w: %s needs a number, got %v", ErrInvalidThreshold, op, threshold)
		}

		c.number = n
	case OpContains:
		if _, ok := threshold.(string); !ok {
			return Condition{}, fmt.Errorf("%w: contains needs a string, got %v", ErrInvalidThreshold, threshold)
		}
	case OpIn:
		members, ok := toSlice(threshold)
		if !ok {
			return Condition{}, fmt.Errorf("%w: in needs a list, got %v", ErrInvalidThreshold, threshold)
		}

		c.members = members
	case OpEQ, OpNEQ:
	case opInvalid:
		return Condition{}, ErrUnknownOperator
	}

	return c, nil
}

// Field returns the fact the condition reads.
func (c Condition) Field() string { return c.field }

// Operator returns the comparison.
func (c Condition) Operator() Operator { return c.op }

// Met reports whether facts satisfy the condition. A missing or nil fact
// never satisfies it.
func (c Condition) Met(facts map[string]any) bool {
	v, ok := facts[c.field]
	if !ok || v == nil {
		return false
	}

	switch c.op {
	case OpGT, OpGTE, OpLT, OpLTE:
		n, ok := toFloat64(v)
		if !ok {
			return false
		}

		return compareOrdered(c.op, n, c.number)
	case OpEQ:
		return equal(v, c.threshold)
	case OpNEQ:
		return !equal(v, c.threshold)
	case OpContains:
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(c.threshold.(string)))
	case OpIn:
		for _, m := range c.members {
			if equal(v, m) {
				return true
			}
		}

		return false
	case opInvalid:
	}

	panic(fmt.Sprintf("alerts: unhandled operator %d", c.op))
}

func compareOrdered(op Operator, a, b float64) bool {
	switch op {
	case OpGT:
		return a > b
	case OpGTE:
		return a >= b
	case OpLT:
		return a < b
	case OpLTE:
		return a <= b
	default:
		return false
	}
}

func equal(a, b any) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)

	if aok && bok {
		return af == bf
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool, nil:
		return 0, false
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() { //nolint:exhaustive // everything else is not numeric
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}
