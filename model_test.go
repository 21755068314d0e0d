package docql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customerProfile struct {
	ID       string `bson:"_id"`
	FullName string `bson:"full_name"`
	Age      int    `bson:"age"`
	Ignored  string `bson:"-"`
	Untagged bool
}

func TestModelNamingAndKeyDiscovery(t *testing.T) {
	m, err := modelFor[customerProfile]()
	require.NoError(t, err)

	assert.Equal(t, "customer_profile", m.Collection().Name)
	assert.Equal(t, "_id", m.Collection().KeyField)

	_, ok := m.fieldByName("full_name")
	assert.True(t, ok)
	_, ok = m.fieldByName("untagged")
	assert.True(t, ok)
	_, ok = m.fieldByName("-")
	assert.False(t, ok)
	_, ok = m.fieldByName("hidden")
	assert.False(t, ok)
}

type taggedKey struct {
	Code string `bson:"code,key"`
	Val  int    `bson:"val"`
}

func TestModelTaggedKeyOption(t *testing.T) {
	m, err := modelFor[taggedKey]()
	require.NoError(t, err)
	assert.Equal(t, "code", m.Collection().KeyField)
}

func TestModelOrdinalsFollowDeclarationOrder(t *testing.T) {
	m, err := modelFor[taggedKey]()
	require.NoError(t, err)

	require.Len(t, m.fields, 2)
	assert.Equal(t, 0, m.fields[0].ordinal)
	assert.Equal(t, "code", m.fields[0].name)
	assert.Equal(t, 1, m.fields[1].ordinal)
	assert.Equal(t, "val", m.fields[1].name)
}

type reservedField struct {
	Bad string `bson:"__docql_bad"`
}

func TestModelRejectsReservedFieldPrefix(t *testing.T) {
	_, err := modelFor[reservedField]()
	assert.Error(t, err)
}

func TestModelForNonStructFails(t *testing.T) {
	_, err := modelFor[int]()
	assert.Error(t, err)
}

func TestModelCacheReturnsSameInstance(t *testing.T) {
	m1, err := modelFor[taggedKey]()
	require.NoError(t, err)
	m2, err := modelFor[taggedKey]()
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestCollectionRefEqualityIsStructural(t *testing.T) {
	m, err := modelFor[taggedKey]()
	require.NoError(t, err)
	assert.Equal(t, m.ref(), m.ref())

	other, err := modelFor[customerProfile]()
	require.NoError(t, err)
	assert.NotEqual(t, m.ref(), other.ref())
}

func TestCollectionNameOverride(t *testing.T) {
	p := NewMemoryProvider()

	col, err := CollectionOf[taggedKey](p, WithCollectionName("codes"))
	require.NoError(t, err)
	assert.Equal(t, "codes", col.Model().Collection().Name)

	// the convention-named model must be untouched
	m, err := modelFor[taggedKey]()
	require.NoError(t, err)
	assert.Equal(t, "tagged_key", m.Collection().Name)
}
