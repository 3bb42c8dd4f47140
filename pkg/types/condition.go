package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// CompareOp is a leaf comparison operator.
type CompareOp string

// Leaf operators.
const (
	OpEq       CompareOp = "eq"
	OpNe       CompareOp = "ne"
	OpGt       CompareOp = "gt"
	OpGte      CompareOp = "gte"
	OpLt       CompareOp = "lt"
	OpLte      CompareOp = "lte"
	OpIn       CompareOp = "in"
	OpNotIn    CompareOp = "not_in"
	OpContains CompareOp = "contains"
)

// Valid reports whether the operator is supported.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains:
		return true
	default:
		return false
	}
}

// BoolOp combines child conditions.
type BoolOp string

// Compound operators.
const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
	BoolNot BoolOp = "not"
)

// Condition is a boolean expression over named metric comparisons. A
// condition is either a leaf (Metric, Op, Threshold) or a compound
// (Bool, Children) — never both. Trees are finite and acyclic by
// construction; Validate enforces shape at load time so evaluation
// never has to.
type Condition struct {
	// Leaf fields.
	Metric    string    `json:"metric,omitempty"    yaml:"metric,omitempty"`
	Op        CompareOp `json:"op,omitempty"        yaml:"op,omitempty"`
	Threshold any       `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// Compound fields.
	Bool     BoolOp      `json:"bool,omitempty"     yaml:"bool,omitempty"`
	Children []Condition `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsLeaf reports whether the condition is a leaf comparison.
func (c *Condition) IsLeaf() bool {
	return c.Metric != ""
}

// Validate checks the condition tree shape. It is called once at rule load
// time; evaluation assumes a validated tree.
func (c *Condition) Validate() error {
	if c.IsLeaf() {
		if c.Bool != "" || len(c.Children) > 0 {
			return fmt.Errorf("condition on %q: leaf cannot have children", c.Metric)
		}
		if !c.Op.Valid() {
			return fmt.Errorf("condition on %q: unknown operator %q", c.Metric, c.Op)
		}
		if c.Op == OpIn || c.Op == OpNotIn {
			if _, ok := asStringSet(c.Threshold); !ok {
				return fmt.Errorf(
					"condition on %q: %s requires a string-set threshold", c.Metric, c.Op,
				)
			}
		}
		return nil
	}

	switch c.Bool {
	case BoolNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("not requires exactly one child, got %d", len(c.Children))
		}
	case BoolAnd, BoolOr:
		if len(c.Children) == 0 {
			return fmt.Errorf("%s requires at least one child", c.Bool)
		}
	default:
		return fmt.Errorf("unknown boolean operator %q", c.Bool)
	}

	for i := range c.Children {
		if err := c.Children[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Leaves appends the metric name of every leaf in the tree to dst, in tree
// order, without deduplication.
func (c *Condition) Leaves(dst []string) []string {
	if c.IsLeaf() {
		return append(dst, c.Metric)
	}
	for i := range c.Children {
		dst = c.Children[i].Leaves(dst)
	}
	return dst
}

// EvalFault records a leaf that failed closed during evaluation: a missing
// metric or an incomparable type pairing.
type EvalFault struct {
	Metric string `json:"metric"`
	Reason string `json:"reason"`
}

// EvalDiagnostics collects evaluation faults as a side channel. Evaluation
// itself never returns an error; faulted leaves evaluate to false.
type EvalDiagnostics struct {
	Faults []EvalFault
}

func (d *EvalDiagnostics) record(metric, reason string) {
	if d == nil {
		return
	}
	d.Faults = append(d.Faults, EvalFault{Metric: metric, Reason: reason})
}

// Eval evaluates the condition against a metric snapshot. Compound nodes
// short-circuit; leaves are pure, so short-circuiting never changes the
// result. Missing metrics and incompatible types fail closed and are
// recorded in diag (which may be nil).
func (c *Condition) Eval(snap Snapshot, diag *EvalDiagnostics) bool {
	if c.IsLeaf() {
		return c.evalLeaf(snap, diag)
	}

	switch c.Bool {
	case BoolAnd:
		for i := range c.Children {
			if !c.Children[i].Eval(snap, diag) {
				return false
			}
		}
		return true
	case BoolOr:
		for i := range c.Children {
			if c.Children[i].Eval(snap, diag) {
				return true
			}
		}
		return false
	case BoolNot:
		return !c.Children[0].Eval(snap, diag)
	default:
		// Unreachable on validated trees.
		return false
	}
}

func (c *Condition) evalLeaf(snap Snapshot, diag *EvalDiagnostics) bool {
	val, ok := snap[c.Metric]
	if !ok {
		diag.record(c.Metric, "metric absent from snapshot")
		return false
	}

	switch c.Op {
	case OpEq, OpNe:
		eq, ok := valuesEqual(val, c.Threshold)
		if !ok {
			diag.record(c.Metric, "incomparable types for equality")
			return false
		}
		if c.Op == OpNe {
			return !eq
		}
		return eq

	case OpGt, OpGte, OpLt, OpLte:
		v, vok := asFloat(val)
		t, tok := asFloat(c.Threshold)
		if !vok || !tok {
			diag.record(c.Metric, "non-numeric operand for ordered comparison")
			return false
		}
		switch c.Op {
		case OpGt:
			return v > t
		case OpGte:
			return v >= t
		case OpLt:
			return v < t
		default:
			return v <= t
		}

	case OpIn, OpNotIn:
		set, ok := asStringSet(c.Threshold)
		if !ok {
			diag.record(c.Metric, "threshold is not a string set")
			return false
		}
		s, ok := asString(val)
		if !ok {
			diag.record(c.Metric, "value is not a string")
			return false
		}
		member := slices.Contains(set, s)
		if c.Op == OpNotIn {
			return !member
		}
		return member

	case OpContains:
		needle, ok := asString(c.Threshold)
		if !ok {
			diag.record(c.Metric, "contains threshold is not a string")
			return false
		}
		if set, ok := asStringSet(val); ok {
			return slices.Contains(set, needle)
		}
		s, ok := asString(val)
		if !ok {
			diag.record(c.Metric, "value is neither string nor string set")
			return false
		}
		return strings.Contains(s, needle)

	default:
		return false
	}
}

// valuesEqual compares two snapshot values of possibly different concrete
// types. Numbers compare numerically, booleans and strings directly. The
// second return is false when the pairing is incomparable.
func valuesEqual(a, b any) (equal, ok bool) {
	if av, aok := asFloat(a); aok {
		bv, bok := asFloat(b)
		if !bok {
			return false, false
		}
		return av == bv, true
	}
	if av, aok := a.(bool); aok {
		bv, bok := b.(bool)
		if !bok {
			return false, false
		}
		return av == bv, true
	}
	if av, aok := asString(a); aok {
		bv, bok := asString(b)
		if !bok {
			return false, false
		}
		return av == bv, true
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asStringSet accepts []string directly and []any of strings, which is what
// YAML and JSON decoding produce.
func asStringSet(v any) ([]string, bool) {
	switch set := v.(type) {
	case []string:
		return set, true
	case []any:
		out := make([]string, 0, len(set))
		for _, e := range set {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
