package docql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderDoc struct {
	ID     string   `bson:"_id"`
	N      int      `bson:"n"`
	Status string   `bson:"status"`
	Tags   []string `bson:"tags"`
}

func orderModel(t *testing.T) *EntityModel {
	t.Helper()
	m, err := modelFor[orderDoc]()
	require.NoError(t, err)
	return m
}

func TestTranslateOpsRootShape(t *testing.T) {
	model := orderModel(t)

	shape, card, err := translateOps(model, nil, "from")
	require.NoError(t, err)
	assert.Equal(t, cardMany, card)
	assert.Equal(t, model.Type(), shape.Collection().Type)
	assert.Equal(t, "order_doc", shape.Collection().Name)
	assert.False(t, shape.hasFilter)
	assert.Empty(t, shape.limits)
}

func TestTranslateWhereFolds(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Where(Gt(Field("n"), Value(50)))

	shape, _, err := translateOps(model, q.ops, q.String())
	require.NoError(t, err)
	assert.True(t, shape.hasFilter)
}

func TestTranslateWhereUntranslatableFails(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Where(Eq(Field("n"), Field("status")))

	_, _, err := translateOps(model, q.ops, q.String())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranslationFailed)
	assert.Contains(t, err.Error(), "Where((n == status))")
}

func TestTranslateTakeFolds(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Take(10).Take(4)

	shape, _, err := translateOps(model, q.ops, q.String())
	require.NoError(t, err)
	assert.Len(t, shape.limits, 2)
}

func TestTranslateTakeNegativeFails(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Take(-1)

	_, _, err := translateOps(model, q.ops, q.String())
	assert.Error(t, err)
}

func TestUnsupportedOperatorsRejectHard(t *testing.T) {
	model := orderModel(t)

	tests := []struct {
		name string
		q    Query[orderDoc]
	}{
		{name: "Skip", q: From[orderDoc]().Skip(5)},
		{name: "Skip after Take", q: From[orderDoc]().Take(3).Skip(5)},
		{name: "OrderBy", q: From[orderDoc]().OrderBy("n")},
		{name: "OrderByDescending", q: From[orderDoc]().OrderByDescending("n")},
		{name: "Distinct", q: From[orderDoc]().Distinct()},
		{name: "GroupBy", q: From[orderDoc]().GroupBy("status")},
		{name: "Join", q: From[orderDoc]().Join("customers")},
		{name: "Union", q: From[orderDoc]().Union(From[orderDoc]())},
		{name: "Intersect", q: From[orderDoc]().Intersect(From[orderDoc]())},
		{name: "Except", q: From[orderDoc]().Except(From[orderDoc]())},
		{name: "Concat", q: From[orderDoc]().Concat(From[orderDoc]())},
		{name: "Sum", q: From[orderDoc]().Sum("n")},
		{name: "Average", q: From[orderDoc]().Average("n")},
		{name: "Min", q: From[orderDoc]().Min("n")},
		{name: "Max", q: From[orderDoc]().Max("n")},
		{name: "Any", q: From[orderDoc]().Any()},
		{name: "All", q: From[orderDoc]().All(Gt(Field("n"), Value(0)))},
		{name: "Last", q: From[orderDoc]().Last()},
		{name: "LastOrDefault", q: From[orderDoc]().LastOrDefault()},
		{name: "Reverse", q: From[orderDoc]().Reverse()},
		{name: "ElementAt", q: From[orderDoc]().ElementAt(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := translateOps(model, tt.q.ops, tt.q.String())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotSupported)
		})
	}
}

func TestCardinalityPassThroughPushesNoLimit(t *testing.T) {
	model := orderModel(t)

	tests := []struct {
		name string
		q    Query[orderDoc]
		want cardinality
	}{
		{name: "First", q: From[orderDoc]().First(), want: cardFirst},
		{name: "FirstOrDefault", q: From[orderDoc]().FirstOrDefault(), want: cardFirstOrDefault},
		{name: "Single", q: From[orderDoc]().Single(), want: cardSingle},
		{name: "SingleOrDefault", q: From[orderDoc]().SingleOrDefault(), want: cardSingleOrDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, card, err := translateOps(model, tt.q.ops, tt.q.String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, card)
			// known gap: no server-side limit of 1
			assert.Empty(t, shape.limits)
		})
	}
}

func TestDoubleCardinalityRejected(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().First().Single()

	_, _, err := translateOps(model, q.ops, q.String())
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestTranslateSelectValidatesFields(t *testing.T) {
	model := orderModel(t)

	q := From[orderDoc]().Select("n", "status")
	shape, _, err := translateOps(model, q.ops, q.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "status"}, shape.projection)

	q = From[orderDoc]().Select("bogus")
	_, _, err = translateOps(model, q.ops, q.String())
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestTranslateCountSetsCardinality(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Where(Gt(Field("n"), Value(0))).Count()

	_, card, err := translateOps(model, q.ops, q.String())
	require.NoError(t, err)
	assert.Equal(t, cardCount, card)
}

func TestNativeCapturedAsResidual(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().Native(func(f *Finder) *Finder { return f.Limit(2) })

	shape, _, err := translateOps(model, q.ops, q.String())
	require.NoError(t, err)
	assert.NotNil(t, shape.residual)
}

func TestFoldingAfterResidualRejected(t *testing.T) {
	model := orderModel(t)
	q := From[orderDoc]().
		Native(func(f *Finder) *Finder { return f }).
		Where(Gt(Field("n"), Value(0)))

	_, _, err := translateOps(model, q.ops, q.String())
	assert.Error(t, err)
}
