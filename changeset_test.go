package docql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

type account struct {
	ID      string `bson:"_id"`
	Balance int    `bson:"balance"`
}

func TestBuildWriteModelsPreservesOrderAndKinds(t *testing.T) {
	model, err := modelFor[account]()
	require.NoError(t, err)

	cs := NewChangeSet[account]().
		Add(account{ID: "a", Balance: 1}).
		Update(account{ID: "b", Balance: 2}).
		Remove(account{ID: "c"})

	models, err := buildWriteModels(model, cs.entries)
	require.NoError(t, err)
	require.Len(t, models, 3)

	assert.IsType(t, &mongo.InsertOneModel{}, models[0])
	assert.IsType(t, &mongo.ReplaceOneModel{}, models[1])
	assert.IsType(t, &mongo.DeleteOneModel{}, models[2])
}

type keyless struct {
	Name string `bson:"name"`
}

func TestUpdateWithoutKeyFieldFails(t *testing.T) {
	model, err := modelFor[keyless]()
	require.NoError(t, err)

	cs := NewChangeSet[keyless]().Update(keyless{Name: "x"})
	_, err = buildWriteModels(model, cs.entries)
	assert.Error(t, err)
}

func TestSaveChangesAgainstMemoryStore(t *testing.T) {
	p := NewMemoryProvider()
	col, err := CollectionOf[account](p)
	require.NoError(t, err)
	ctx := context.Background()

	cs := NewChangeSet[account]().
		Add(account{ID: "a", Balance: 10}).
		Add(account{ID: "b", Balance: 20}).
		Add(account{ID: "c", Balance: 30})
	require.NoError(t, col.SaveChanges(ctx, cs))

	cs = NewChangeSet[account]().
		Update(account{ID: "b", Balance: 25}).
		Remove(account{ID: "c"})
	require.NoError(t, col.SaveChanges(ctx, cs))

	cq, err := col.Compile(From[account]())
	require.NoError(t, err)
	got, err := cq.All(ctx, nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, account{ID: "a", Balance: 10}, got[0])
	assert.Equal(t, account{ID: "b", Balance: 25}, got[1])
}

func TestSaveChangesEmptySetIsNoop(t *testing.T) {
	p := NewMemoryProvider()
	col, err := CollectionOf[account](p)
	require.NoError(t, err)

	require.NoError(t, col.SaveChanges(context.Background(), nil))
	require.NoError(t, col.SaveChanges(context.Background(), NewChangeSet[account]()))
}

func TestSharedBackendAcrossCollectionHandles(t *testing.T) {
	p := NewMemoryProvider()
	mem := newMemoryCollection("accounts")

	writer, err := CollectionOf[account](p, withQuerier(mem))
	require.NoError(t, err)
	reader, err := CollectionOf[account](p, withQuerier(mem))
	require.NoError(t, err)

	cs := NewChangeSet[account]().Add(account{ID: "a", Balance: 5})
	require.NoError(t, writer.SaveChanges(context.Background(), cs))

	cq, err := reader.Compile(From[account]().Count())
	require.NoError(t, err)
	n, err := cq.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSaveChangesUpdateMissingKey(t *testing.T) {
	p := NewMemoryProvider()
	col, err := CollectionOf[account](p)
	require.NoError(t, err)

	cs := NewChangeSet[account]().Update(account{ID: "ghost", Balance: 1})
	err = col.SaveChanges(context.Background(), cs)
	assert.ErrorIs(t, err, ErrKeynotFound)
}
