package docql

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// memoryCollection is an in-memory CollectionQuerier used by the test suite
// and usable as a lightweight fake. It evaluates the same filter documents
// the translator emits, over the same bson.Raw representation the wire
// cursor yields, so compiled queries behave identically against it.
//
// Supported filter surface: implicit equality, $eq, $ne, $gt, $gte, $lt,
// $lte, $in, $and, $or, $nor. That is exactly the surface the translator can
// produce. FindSpec.Sort is ignored; cursor order over a memory collection is
// always insertion order.
type memoryCollection struct {
	mu   sync.RWMutex
	name string
	docs []bson.Raw
}

func newMemoryCollection(name string) *memoryCollection {
	return &memoryCollection{name: name}
}

func (m *memoryCollection) Name() string { return m.name }

// add marshals and stores documents in insertion order. Cursor order over a
// memory collection is insertion order.
func (m *memoryCollection) add(docs ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		m.docs = append(m.docs, raw)
	}

	return nil
}

func (m *memoryCollection) Find(ctx context.Context, filter any, spec FindSpec) (DocumentCursor, error) {
	matched, err := m.matchAll(filter)
	if err != nil {
		return nil, err
	}

	if spec.Limit != nil && int64(len(matched)) > *spec.Limit {
		matched = matched[:*spec.Limit]
	}

	return &memoryCursor{docs: matched}, nil
}

func (m *memoryCollection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	matched, err := m.matchAll(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (m *memoryCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, model := range models {
		switch wm := model.(type) {
		case *mongo.InsertOneModel:
			raw, err := bson.Marshal(wm.Document)
			if err != nil {
				return err
			}
			m.docs = append(m.docs, raw)
		case *mongo.ReplaceOneModel:
			idx, err := m.indexOfLocked(wm.Filter)
			if err != nil {
				return err
			}
			raw, merr := bson.Marshal(wm.Replacement)
			if merr != nil {
				return merr
			}
			if idx < 0 {
				if wm.Upsert != nil && *wm.Upsert {
					m.docs = append(m.docs, raw)
					continue
				}
				return ErrKeynotFound
			}
			m.docs[idx] = raw
		case *mongo.DeleteOneModel:
			idx, err := m.indexOfLocked(wm.Filter)
			if err != nil {
				return err
			}
			if idx < 0 {
				return ErrKeynotFound
			}
			m.docs = append(m.docs[:idx], m.docs[idx+1:]...)
		default:
			return fmt.Errorf("unsupported write model %T", model)
		}
	}

	return nil
}

func (m *memoryCollection) matchAll(filter any) ([]bson.Raw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []bson.Raw
	for _, doc := range m.docs {
		ok, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	return matched, nil
}

func (m *memoryCollection) indexOfLocked(filter any) (int, error) {
	for i, doc := range m.docs {
		ok, err := matchFilter(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

type memoryCursor struct {
	docs    []bson.Raw
	pos     int
	current bson.Raw
	closed  bool
	// closeCount lets tests assert single release on double Close.
	closeCount int
}

func (c *memoryCursor) Next(ctx context.Context) bool {
	if c.closed || ctx.Err() != nil || c.pos >= len(c.docs) {
		return false
	}
	c.current = c.docs[c.pos]
	c.pos++
	return true
}

func (c *memoryCursor) Current() bson.Raw { return c.current }

func (c *memoryCursor) Err() error { return nil }

func (c *memoryCursor) Close(ctx context.Context) error {
	if !c.closed {
		c.closed = true
		c.closeCount++
	}
	return nil
}

// matchFilter evaluates a translator-emitted filter document against one
// stored document.
func matchFilter(doc bson.Raw, filter any) (bool, error) {
	fd, ok := filter.(bson.D)
	if !ok {
		return false, fmt.Errorf("memory matcher expects bson.D filters, got %T", filter)
	}

	for _, e := range fd {
		ok, err := matchElement(doc, e)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func matchElement(doc bson.Raw, e bson.E) (bool, error) {
	switch e.Key {
	case "$and":
		subs, err := filterList(e.Value)
		if err != nil {
			return false, err
		}
		for _, sub := range subs {
			ok, err := matchFilter(doc, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		subs, err := filterList(e.Value)
		if err != nil {
			return false, err
		}
		for _, sub := range subs {
			ok, err := matchFilter(doc, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$nor":
		subs, err := filterList(e.Value)
		if err != nil {
			return false, err
		}
		for _, sub := range subs {
			ok, err := matchFilter(doc, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}

	rv, present := lookupField(doc, e.Key)

	// field compared against an operator document
	if ops, ok := e.Value.(bson.D); ok && len(ops) > 0 && len(ops[0].Key) > 0 && ops[0].Key[0] == '$' {
		for _, op := range ops {
			ok, err := matchOperator(rv, present, op)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	// implicit equality
	if !present {
		return false, nil
	}
	return rawEqual(rv, e.Value), nil
}

func matchOperator(rv bson.RawValue, present bool, op bson.E) (bool, error) {
	switch op.Key {
	case "$eq":
		return present && rawEqual(rv, op.Value), nil
	case "$ne":
		return !present || !rawEqual(rv, op.Value), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		cmp, ok := rawCompare(rv, op.Value)
		if !ok {
			return false, nil
		}
		switch op.Key {
		case "$gt":
			return cmp > 0, nil
		case "$gte":
			return cmp >= 0, nil
		case "$lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case "$in":
		if !present {
			return false, nil
		}
		list, ok := op.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("$in expects an array, got %T", op.Value)
		}
		for _, candidate := range list {
			if rawEqual(rv, candidate) {
				return true, nil
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("memory matcher: unsupported operator %s", op.Key)
}

func filterList(v any) ([]bson.D, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("logical operator expects an array, got %T", v)
	}

	subs := make([]bson.D, len(arr))
	for i, item := range arr {
		sub, ok := item.(bson.D)
		if !ok {
			return nil, fmt.Errorf("logical operator expects filter documents, got %T", item)
		}
		subs[i] = sub
	}

	return subs, nil
}

func rawEqual(rv bson.RawValue, operand any) bool {
	if cmp, ok := rawCompare(rv, operand); ok {
		return cmp == 0
	}

	switch rv.Type {
	case bsontype.Boolean:
		b, ok := operand.(bool)
		return ok && rv.Boolean() == b
	case bsontype.Null:
		return operand == nil
	case bsontype.ObjectID:
		id, ok := operand.(primitive.ObjectID)
		return ok && rv.ObjectID() == id
	case bsontype.Decimal128:
		d, ok := operand.(primitive.Decimal128)
		return ok && rv.Decimal128().String() == d.String()
	}

	return false
}

// rawCompare orders a stored value against a filter operand. Numbers, strings
// and datetimes have an ordering; everything else reports not comparable.
func rawCompare(rv bson.RawValue, operand any) (int, bool) {
	switch rv.Type {
	case bsontype.Int32, bsontype.Int64, bsontype.Double:
		left := rawNumber(rv)
		right, ok := operandNumber(operand)
		if !ok {
			return 0, false
		}
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	case bsontype.String:
		right, ok := operand.(string)
		if !ok {
			return 0, false
		}
		left := rv.StringValue()
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	case bsontype.DateTime:
		right, ok := operand.(time.Time)
		if !ok {
			return 0, false
		}
		left := rv.Time()
		switch {
		case left.Before(right):
			return -1, true
		case left.After(right):
			return 1, true
		default:
			return 0, true
		}
	}

	return 0, false
}

func rawNumber(rv bson.RawValue) float64 {
	switch rv.Type {
	case bsontype.Int32:
		return float64(rv.Int32())
	case bsontype.Int64:
		return float64(rv.Int64())
	default:
		return rv.Double()
	}
}

func operandNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
