package docql

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Provider binds compiled queries to one database. It owns the compiled
// query cache: one executable per distinct query shape, shared across
// executions.
type Provider struct {
	db       *mongo.Database
	logger   Logger
	mu       sync.Mutex
	compiled map[compiledKey]any

	detectConcurrency bool
	trackingInit      TrackingInitializer
	nullSliceAsNil    bool
}

func NewProvider(db *mongo.Database, options ...ProviderOption) *Provider {
	opt := &providerOption{logger: noopLogger{}}
	for _, op := range options {
		op(opt)
	}

	return &Provider{
		db:                db,
		logger:            opt.logger,
		compiled:          map[compiledKey]any{},
		detectConcurrency: opt.detectConcurrency,
		trackingInit:      opt.trackingInit,
		nullSliceAsNil:    opt.nullSliceAsNil,
	}
}

// Connect dials the server and returns a provider over the named database.
func Connect(ctx context.Context, uri, database string, options ...ProviderOption) (*Provider, error) {
	client, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	return NewProvider(client.Database(database), options...), nil
}

// NewMemoryProvider is a provider over in-memory collections. Compiled
// queries behave the same as against a live server, which is what the test
// suite relies on.
func NewMemoryProvider(options ...ProviderOption) *Provider {
	return NewProvider(nil, options...)
}

// Collection is the typed entry point for queries and change sets over one
// logical collection.
type Collection[T any] struct {
	provider *Provider
	model    *EntityModel
	querier  CollectionQuerier
}

func CollectionOf[T any](p *Provider, options ...CollectionOption) (*Collection[T], error) {
	opt := &collectionOption{}
	for _, op := range options {
		op(opt)
	}

	model, err := modelFor[T]()
	if err != nil {
		return nil, err
	}

	if opt.name != "" {
		// per-collection override of the naming convention; the model cache
		// keeps convention naming, so copy before renaming
		renamed := *model
		renamed.collection.Name = opt.name
		model = &renamed
	}

	querier := opt.querier
	if querier == nil {
		if p.db == nil {
			querier = newMemoryCollection(model.Collection().Name)
		} else {
			querier = &mongoCollection{coll: p.db.Collection(model.Collection().Name)}
		}
	}

	return &Collection[T]{provider: p, model: model, querier: querier}, nil
}

func (c *Collection[T]) Model() *EntityModel { return c.model }

// Compile runs the translation pipeline for the query, or returns the cached
// executable when the shape has been compiled before. Recompilation happens
// only for a new expression shape, never for new parameter values.
func (c *Collection[T]) Compile(q Query[T]) (*CompiledQuery[T], error) {
	key := compiledKey{typ: c.model.Type(), collection: c.model.Collection().Name, text: q.String()}

	c.provider.mu.Lock()
	cached, ok := c.provider.compiled[key]
	c.provider.mu.Unlock()
	if ok {
		return cached.(*CompiledQuery[T]), nil
	}

	cq, err := compileQuery(c, q)
	if err != nil {
		c.provider.logger.Error("query compilation failed",
			zap.String("query", q.String()),
			zap.Error(err))
		return nil, err
	}

	c.provider.mu.Lock()
	c.provider.compiled[key] = cq
	c.provider.mu.Unlock()

	c.provider.logger.Debug("query compiled",
		zap.String("query", q.String()),
		zap.String("collection", c.model.Collection().Name))

	return cq, nil
}

// Seed inserts documents directly into an in-memory collection.
func (c *Collection[T]) Seed(entities ...T) error {
	mem, ok := c.querier.(*memoryCollection)
	if !ok {
		return fmt.Errorf("seed is only supported on memory collections")
	}

	for _, e := range entities {
		doc, err := encodeEntity(c.model, e)
		if err != nil {
			return err
		}
		if err := mem.add(doc); err != nil {
			return err
		}
	}

	return nil
}
