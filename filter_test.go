package docql

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type filterEntity struct {
	ID     string `bson:"_id"`
	N      int    `bson:"n"`
	Status string `bson:"status"`
	Active bool   `bson:"active"`
}

func filterModel(t *testing.T) *EntityModel {
	t.Helper()
	m, err := modelFor[filterEntity]()
	require.NoError(t, err)
	return m
}

func TestTranslateFilter(t *testing.T) {
	model := filterModel(t)

	tests := []struct {
		name string
		expr Expr
		want bson.D
	}{
		{
			name: "equality folds to direct match",
			expr: Eq(Field("status"), Value("open")),
			want: bson.D{{Key: "status", Value: "open"}},
		},
		{
			name: "greater than",
			expr: Gt(Field("n"), Value(50)),
			want: bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: 50}}}},
		},
		{
			name: "not equal",
			expr: Ne(Field("n"), Value(0)),
			want: bson.D{{Key: "n", Value: bson.D{{Key: "$ne", Value: 0}}}},
		},
		{
			name: "conjunction",
			expr: And(Gt(Field("n"), Value(1)), Lte(Field("n"), Value(9))),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: 1}}}},
				bson.D{{Key: "n", Value: bson.D{{Key: "$lte", Value: 9}}}},
			}}},
		},
		{
			name: "disjunction",
			expr: Or(Eq(Field("status"), Value("a")), Eq(Field("status"), Value("b"))),
			want: bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "status", Value: "a"}},
				bson.D{{Key: "status", Value: "b"}},
			}}},
		},
		{
			name: "negation",
			expr: Not(Eq(Field("active"), Value(true))),
			want: bson.D{{Key: "$nor", Value: bson.A{
				bson.D{{Key: "active", Value: true}},
			}}},
		},
		{
			name: "membership",
			expr: In(Field("status"), Value("a"), Value("b")),
			want: bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b"}}}}},
		},
		{
			name: "parameter becomes marker",
			expr: Gt(Field("n"), Param("min")),
			want: bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: paramMarker{Name: "min"}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translateFilter(tt.expr, model)
			require.True(t, ok)
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(paramMarker{})); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslateFilterRefusals(t *testing.T) {
	model := filterModel(t)

	tests := []struct {
		name string
		expr Expr
	}{
		{name: "unknown field", expr: Eq(Field("nope"), Value(1))},
		{name: "field to field comparison", expr: Eq(Field("n"), Field("status"))},
		{name: "constant on left after normalization skipped", expr: Gt(Value(1), Value(2))},
		{name: "membership over non-field", expr: In(Value(1), Value(2))},
		{name: "membership with field candidate", expr: In(Field("n"), Field("status"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := translateFilter(tt.expr, model)
			assert.False(t, ok)
		})
	}
}

func TestTranslateValueUsesStoredForms(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	v, ok := translateValue(Value(id))
	require.True(t, ok)
	assert.Equal(t, id.String(), v)

	v, ok = translateValue(Value(Char('x')))
	require.True(t, ok)
	assert.Equal(t, int32('x'), v)
}

func TestResolveFilterEncodesParameterValues(t *testing.T) {
	ec := newExecutionContext(noopLogger{}, false, nil)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ec.SetParameter("g", id)

	got, err := resolveFilter(bson.D{{Key: "guid", Value: paramMarker{Name: "g"}}}, ec)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "guid", Value: id.String()}}, got)
}

func TestResolveFilterSubstitutesMarkers(t *testing.T) {
	ec := newExecutionContext(noopLogger{}, false, nil)
	ec.SetParameter("min", 51)

	tpl := bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: paramMarker{Name: "min"}}}}}

	got, err := resolveFilter(tpl, ec)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: 51}}}}, got)

	// the template must stay reusable
	assert.Equal(t, paramMarker{Name: "min"}, tpl[0].Value.(bson.D)[0].Value)
}

func TestResolveFilterMissingParameter(t *testing.T) {
	ec := newExecutionContext(noopLogger{}, false, nil)
	tpl := bson.D{{Key: "n", Value: paramMarker{Name: "absent"}}}

	_, err := resolveFilter(tpl, ec)
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestResolveFilterEvaluatesExtractor(t *testing.T) {
	ec := newExecutionContext(noopLogger{}, false, nil)
	calls := 0
	ec.SetParameter("min", func() any {
		calls++
		return 7
	})

	got, err := resolveFilter(bson.D{{Key: "n", Value: paramMarker{Name: "min"}}}, ec)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "n", Value: 7}}, got)
	assert.Equal(t, 1, calls)
}
