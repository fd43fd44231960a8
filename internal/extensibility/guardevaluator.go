package extensibility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/comalice/harel"
)

// Expression is a property comparison of the form "key op value", for
// example "temp > 30" or "loggedIn == true". Keys prefixed with "_event."
// read the trigger's properties; any other key reads the host's
// harel.DataModel.
type Expression struct {
	Key   string
	Op    string
	Value string

	src string
}

var operators = map[string]bool{
	"==": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true,
}

// ParseExpression parses a guard expression.
func ParseExpression(s string) (*Expression, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return nil, fmt.Errorf("expression %q: want \"key op value\"", s)
	}
	if !operators[parts[1]] {
		return nil, fmt.Errorf("expression %q: unknown operator %q", s, parts[1])
	}
	return &Expression{Key: parts[0], Op: parts[1], Value: unquote(parts[2]), src: s}, nil
}

// MustParseExpression is ParseExpression for literals. It panics on error.
func MustParseExpression(s string) *Expression {
	e, err := ParseExpression(s)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expression) String() string { return e.src }

// Evaluate implements harel.Condition. Missing keys evaluate to false.
func (e *Expression) Evaluate(cc harel.ConditionContext) bool {
	v, ok := e.lookup(cc)
	if !ok {
		return false
	}
	switch e.Op {
	case "==":
		return equal(v, e.Value)
	case "!=":
		return !equal(v, e.Value)
	}
	lhs, ok := number(v)
	if !ok {
		return false
	}
	rhs, err := strconv.ParseFloat(e.Value, 64)
	if err != nil {
		return false
	}
	switch e.Op {
	case ">":
		return lhs > rhs
	case "<":
		return lhs < rhs
	case ">=":
		return lhs >= rhs
	case "<=":
		return lhs <= rhs
	}
	return false
}

func (e *Expression) lookup(cc harel.ConditionContext) (any, bool) {
	if key, ok := strings.CutPrefix(e.Key, "_event."); ok {
		if cc.Event == nil {
			return nil, false
		}
		v, ok := cc.Event.Properties()[key]
		return v, ok
	}
	dm, ok := harel.HostData(cc.Host)
	if !ok {
		return nil, false
	}
	return dm.Get(e.Key)
}

func equal(v any, lit string) bool {
	switch lit {
	case "true":
		return v == true || v == "true"
	case "false":
		return v == false || v == "false"
	case "nil", "null":
		return v == nil
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		if n, ok := number(v); ok {
			return n == f
		}
	}
	if s, ok := v.(string); ok {
		return s == lit
	}
	return fmt.Sprint(v) == lit
}

// number converts the numeric kinds a data model or a decoded document may
// hold. Strings are parsed so event properties compare numerically.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
