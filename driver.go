package docql

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentCursor is the forward-only cursor the enumerator pulls from.
// mongoCursor backs it in production; memoryCollection provides one for
// tests.
type DocumentCursor interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// CollectionQuerier is the downstream store contract: execute a find over one
// named collection, count documents, and run bulk writes.
type CollectionQuerier interface {
	Name() string
	Find(ctx context.Context, filter any, spec FindSpec) (DocumentCursor, error)
	CountDocuments(ctx context.Context, filter any) (int64, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel) error
}

// FindSpec carries the non-filter find options a query shape or residual can
// set.
type FindSpec struct {
	Limit      *int64
	Projection bson.D
	Sort       bson.D
}

// Finder is the store's fluent find facade. A compiled query splices its
// collection root into one of these, applies the shape's filter and limit,
// and then replays the residual (if any) against it before opening a cursor.
type Finder struct {
	q      CollectionQuerier
	filter any
	spec   FindSpec
}

func newFinder(q CollectionQuerier) *Finder {
	return &Finder{q: q}
}

// Filter merges a filter document into the find. A second filter composes
// with $and.
func (f *Finder) Filter(doc any) *Finder {
	if f.filter == nil {
		f.filter = doc
		return f
	}
	f.filter = bson.D{{Key: "$and", Value: bson.A{f.filter, doc}}}
	return f
}

func (f *Finder) Limit(n int64) *Finder {
	if f.spec.Limit == nil || n < *f.spec.Limit {
		f.spec.Limit = &n
	}
	return f
}

func (f *Finder) Project(fields ...string) *Finder {
	proj := make(bson.D, 0, len(fields))
	for _, name := range fields {
		proj = append(proj, bson.E{Key: name, Value: 1})
	}
	f.spec.Projection = proj
	return f
}

func (f *Finder) Sort(doc bson.D) *Finder {
	f.spec.Sort = doc
	return f
}

func (f *Finder) Cursor(ctx context.Context) (DocumentCursor, error) {
	filter := f.filter
	if filter == nil {
		filter = bson.D{}
	}
	return f.q.Find(ctx, filter, f.spec)
}

func (f *Finder) Count(ctx context.Context) (int64, error) {
	filter := f.filter
	if filter == nil {
		filter = bson.D{}
	}
	return f.q.CountDocuments(ctx, filter)
}

// mongoCollection adapts *mongo.Collection to CollectionQuerier.
type mongoCollection struct {
	coll *mongo.Collection
}

func (m *mongoCollection) Name() string { return m.coll.Name() }

func (m *mongoCollection) Find(ctx context.Context, filter any, spec FindSpec) (DocumentCursor, error) {
	opts := mongoOptions.Find()
	if spec.Limit != nil {
		opts.SetLimit(*spec.Limit)
	}
	if spec.Projection != nil {
		opts.SetProjection(spec.Projection)
	}
	if spec.Sort != nil {
		opts.SetSort(spec.Sort)
	}

	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	return &mongoCursor{cur: cur}, nil
}

func (m *mongoCollection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	return m.coll.CountDocuments(ctx, filter)
}

func (m *mongoCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel) error {
	if len(models) == 0 {
		return nil
	}
	_, err := m.coll.BulkWrite(ctx, models, mongoOptions.BulkWrite().SetOrdered(true))
	return wrapWriteError(err)
}

type mongoCursor struct {
	cur *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }
func (c *mongoCursor) Current() bson.Raw             { return c.cur.Current }
func (c *mongoCursor) Err() error                    { return c.cur.Err() }
func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// lookupField is the read-field-by-name primitive. The second return is
// false when the field is absent from the document, which shaping maps to
// the target type's defined default.
func lookupField(doc bson.Raw, name string) (bson.RawValue, bool) {
	rv, err := doc.LookupErr(name)
	if err != nil {
		return bson.RawValue{}, false
	}
	return rv, true
}

func isNullValue(rv bson.RawValue) bool {
	return rv.Type == bsontype.Null || rv.Type == bsontype.Undefined
}

func wrapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrKeyAlreadyExists
	}
	return err
}
