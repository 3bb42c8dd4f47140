package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(metric string, op CompareOp, threshold any) Condition {
	return Condition{Metric: metric, Op: op, Threshold: threshold}
}

func TestConditionEval_LeafOperators(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		"cpu":     92.5,
		"count":   7,
		"region":  "us-east-1",
		"flags":   []string{"beta", "canary"},
		"paused":  false,
		"message": "connection refused by peer",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gt true", leaf("cpu", OpGt, 90), true},
		{"gt false", leaf("cpu", OpGt, 95), false},
		{"gte boundary", leaf("cpu", OpGte, 92.5), true},
		{"lt true", leaf("count", OpLt, 10), true},
		{"lte boundary", leaf("count", OpLte, 7), true},
		{"eq numeric cross-type", leaf("count", OpEq, 7.0), true},
		{"eq string", leaf("region", OpEq, "us-east-1"), true},
		{"eq bool", leaf("paused", OpEq, false), true},
		{"ne true", leaf("region", OpNe, "eu-west-1"), true},
		{"ne false", leaf("region", OpNe, "us-east-1"), false},
		{"in member", leaf("region", OpIn, []string{"us-east-1", "us-west-2"}), true},
		{"in non-member", leaf("region", OpIn, []string{"eu-west-1"}), false},
		{"not_in non-member", leaf("region", OpNotIn, []string{"eu-west-1"}), true},
		{"contains set member", leaf("flags", OpContains, "canary"), true},
		{"contains set non-member", leaf("flags", OpContains, "stable"), false},
		{"contains substring", leaf("message", OpContains, "refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.Eval(snap, nil))
		})
	}
}

func TestConditionEval_FailsClosedWithDiagnostics(t *testing.T) {
	t.Parallel()

	snap := Snapshot{"region": "us-east-1"}

	tests := []struct {
		name string
		cond Condition
	}{
		{"missing metric", leaf("cpu", OpGt, 90)},
		{"type mismatch ordered", leaf("region", OpGt, 90)},
		{"type mismatch equality", leaf("region", OpEq, true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			diag := &EvalDiagnostics{}
			assert.False(t, tt.cond.Eval(snap, diag))
			require.Len(t, diag.Faults, 1)
			assert.NotEmpty(t, diag.Faults[0].Reason)
		})
	}
}

func TestConditionEval_Compound(t *testing.T) {
	t.Parallel()

	snap := Snapshot{"gem_score": 85.5, "honeypot_detected": false}

	matched := Condition{
		Bool: BoolAnd,
		Children: []Condition{
			leaf("gem_score", OpGt, 80),
			leaf("honeypot_detected", OpEq, false),
		},
	}
	assert.True(t, matched.Eval(snap, nil))

	orCond := Condition{
		Bool: BoolOr,
		Children: []Condition{
			leaf("gem_score", OpGt, 99),
			leaf("honeypot_detected", OpEq, false),
		},
	}
	assert.True(t, orCond.Eval(snap, nil))

	notCond := Condition{
		Bool:     BoolNot,
		Children: []Condition{leaf("honeypot_detected", OpEq, true)},
	}
	assert.True(t, notCond.Eval(snap, nil))

	nested := Condition{
		Bool: BoolAnd,
		Children: []Condition{
			matched,
			Condition{Bool: BoolNot, Children: []Condition{leaf("gem_score", OpLt, 50)}},
		},
	}
	assert.True(t, nested.Eval(snap, nil))
}

func TestConditionEval_ShortCircuitSkipsFaultyBranch(t *testing.T) {
	t.Parallel()

	snap := Snapshot{"cpu": 10.0}

	// The and's first child is false, so the missing-metric leaf is never
	// visited and records no fault.
	cond := Condition{
		Bool: BoolAnd,
		Children: []Condition{
			leaf("cpu", OpGt, 90),
			leaf("not_collected", OpGt, 0),
		},
	}

	diag := &EvalDiagnostics{}
	assert.False(t, cond.Eval(snap, diag))
	assert.Empty(t, diag.Faults)
}

func TestConditionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"valid leaf", leaf("cpu", OpGt, 90), false},
		{"unknown op", leaf("cpu", "between", 90), true},
		{"leaf with children", Condition{
			Metric: "cpu", Op: OpGt, Threshold: 1,
			Children: []Condition{leaf("x", OpEq, 1)},
		}, true},
		{"in without set", leaf("region", OpIn, "us-east-1"), true},
		{"not with two children", Condition{
			Bool:     BoolNot,
			Children: []Condition{leaf("a", OpEq, 1), leaf("b", OpEq, 2)},
		}, true},
		{"and without children", Condition{Bool: BoolAnd}, true},
		{"unknown bool op", Condition{Bool: "xor", Children: []Condition{leaf("a", OpEq, 1)}}, true},
		{"valid nested", Condition{
			Bool: BoolOr,
			Children: []Condition{
				leaf("a", OpEq, 1),
				{Bool: BoolNot, Children: []Condition{leaf("b", OpIn, []string{"x"})}},
			},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cond.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConditionLeaves(t *testing.T) {
	t.Parallel()

	cond := Condition{
		Bool: BoolAnd,
		Children: []Condition{
			leaf("cpu", OpGt, 90),
			{Bool: BoolOr, Children: []Condition{
				leaf("mem", OpGt, 80),
				leaf("cpu", OpLt, 100),
			}},
		},
	}
	assert.Equal(t, []string{"cpu", "mem", "cpu"}, cond.Leaves(nil))
}
