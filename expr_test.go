package docql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{
			name: "comparison",
			expr: Gt(Field("n"), Value(50)),
			want: "(n > 50)",
		},
		{
			name: "conjunction",
			expr: And(Gt(Field("n"), Value(1)), Lt(Field("n"), Value(9))),
			want: "((n > 1) && (n < 9))",
		},
		{
			name: "parameter",
			expr: Eq(Field("status"), Param("wanted")),
			want: "(status == @wanted)",
		},
		{
			name: "negation",
			expr: Not(Eq(Field("active"), Value(true))),
			want: "!((active == true))",
		},
		{
			name: "membership",
			expr: In(Field("tier"), Value("gold"), Value("silver")),
			want: "tier in [gold, silver]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExprString(tt.expr))
		})
	}
}

func TestNormalizeExprFlipsConstantOnLeft(t *testing.T) {
	got := normalizeExpr(Gt(Value(50), Field("n")))

	bin, ok := got.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpLt, bin.Op)
	assert.Equal(t, &FieldExpr{Name: "n"}, bin.Left)
	assert.Equal(t, &ConstantExpr{Value: 50}, bin.Right)
}

func TestNormalizeExprKeepsFieldOnLeft(t *testing.T) {
	orig := Gte(Field("n"), Value(3))
	got := normalizeExpr(orig)
	assert.Equal(t, ExprString(orig), ExprString(got))
}

func TestNormalizeExprCollapsesDoubleNegation(t *testing.T) {
	inner := Eq(Field("a"), Value(1))
	got := normalizeExpr(Not(Not(inner)))
	assert.Equal(t, ExprString(inner), ExprString(got))
}

func TestNormalizeExprFlipsInsideConjunction(t *testing.T) {
	got := normalizeExpr(And(Lt(Value(10), Field("n")), Eq(Field("a"), Value(1))))
	assert.Equal(t, "((n > 10) && (a == 1))", ExprString(got))
}

func TestParamNames(t *testing.T) {
	e := And(
		Gt(Field("n"), Param("min")),
		Or(Lt(Field("n"), Param("max")), Eq(Field("m"), Param("min"))),
	)

	assert.Equal(t, []string{"min", "max"}, paramNames(e))
}

func TestParamNamesWithoutParams(t *testing.T) {
	assert.Empty(t, paramNames(Gt(Field("n"), Value(1))))
}
