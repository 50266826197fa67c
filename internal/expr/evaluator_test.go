package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmetic(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}

	result := e.Eval("2 + 3 * 4", nil, sink)
	assert.Equal(t, float64(14), result)
	assert.Empty(t, sink.Errors)

	result = e.Eval("(2 + 3) * 4", nil, sink)
	assert.Equal(t, float64(20), result)

	result = e.Eval("7 // 2", nil, sink)
	assert.Equal(t, float64(3), result)

	result = e.Eval("-7 // 2", nil, sink)
	assert.Equal(t, float64(-4), result)
}

func TestEvalComparisonAndBool(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}

	assert.Equal(t, float64(1), e.Eval("3 > 2", nil, sink))
	assert.Equal(t, float64(0), e.Eval("3 < 2", nil, sink))
	assert.Equal(t, float64(1), e.Eval("1 == 1 and 2 == 2", nil, sink))
	assert.Equal(t, float64(1), e.Eval("0 or 5", nil, sink))
}

func TestEvalVariables(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}
	vars := map[string]float64{"tip": 3}

	result := e.Eval("tip * 2", vars, sink)
	assert.Equal(t, float64(6), result)

	// unresolved identifiers are 0, not an error.
	result = e.Eval("missing + 1", vars, sink)
	assert.Equal(t, float64(1), result)
	assert.Empty(t, sink.Errors)
}

func TestEvalDivisionByZero(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}

	result := e.Eval("5 / 0", nil, sink)
	assert.Equal(t, float64(0), result)
	require.NotEmpty(t, sink.Errors)
}

func TestEvalSyntaxErrorReturnsZero(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}

	result := e.Eval("2 + ", nil, sink)
	assert.Equal(t, float64(0), result)
	require.NotEmpty(t, sink.Errors)
}

func TestEvalDiceMacroDeterministic(t *testing.T) {
	e := NewSeeded(DefaultLimits(), 1, 1)
	sink := &ErrorSink{}

	result := e.Eval("1d6", nil, sink)
	assert.GreaterOrEqual(t, result, float64(1))
	assert.LessOrEqual(t, result, float64(6))
	assert.Empty(t, sink.Errors)
}

func TestEvalDiceMacroDoesNotMatchIdentifiers(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}
	vars := map[string]float64{"d20_used": 1}

	// "d20_used" should not be mistaken for a "d20" dice macro followed
	// by an identifier tail.
	result := e.Eval("d20_used", vars, sink)
	assert.Equal(t, float64(1), result)
}

func TestEvalDiceLimitsExceeded(t *testing.T) {
	e := New(Limits{DiceMaxCount: 2, DiceMaxSides: 6, MaxLen: 100})
	sink := &ErrorSink{}

	result := e.Eval("3d6", nil, sink)
	assert.Equal(t, float64(0), result)
	require.NotEmpty(t, sink.Errors)
}

func TestEvalExpressionTooLong(t *testing.T) {
	e := New(Limits{DiceMaxCount: 20, DiceMaxSides: 100, MaxLen: 5})
	sink := &ErrorSink{}

	result := e.Eval("1 + 2 + 3 + 4 + 5", nil, sink)
	assert.Equal(t, float64(0), result)
	require.NotEmpty(t, sink.Errors)
}

func TestEvalConditionalClauses(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}
	vars := map[string]float64{"roll": 18}

	ten := 10.0
	twenty := 20.0
	clauses := []Clause{
		{If: "roll >= 20", Then: &twenty},
		{If: "roll >= 10", Then: &ten},
	}
	result := e.EvalConditional(clauses, "", false, vars, sink)
	assert.Equal(t, float64(10), result)
}

func TestEvalConditionalFallsThroughToElse(t *testing.T) {
	e := New(DefaultLimits())
	sink := &ErrorSink{}
	vars := map[string]float64{"roll": 1}

	ten := 10.0
	clauses := []Clause{{If: "roll >= 10", Then: &ten}}
	result := e.EvalConditional(clauses, "-1", true, vars, sink)
	assert.Equal(t, float64(-1), result)
}
