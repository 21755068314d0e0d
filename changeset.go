package docql

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type EntityState int

const (
	StateAdded EntityState = iota
	StateModified
	StateDeleted
)

func (s EntityState) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

type changeEntry[T any] struct {
	state  EntityState
	entity T
}

// ChangeSet collects tracked entity states to flush in one ordered bulk
// write. Entry order is preserved all the way to the store.
type ChangeSet[T any] struct {
	entries []changeEntry[T]
}

func NewChangeSet[T any]() *ChangeSet[T] { return &ChangeSet[T]{} }

func (cs *ChangeSet[T]) Add(entity T) *ChangeSet[T] {
	cs.entries = append(cs.entries, changeEntry[T]{state: StateAdded, entity: entity})
	return cs
}

func (cs *ChangeSet[T]) Update(entity T) *ChangeSet[T] {
	cs.entries = append(cs.entries, changeEntry[T]{state: StateModified, entity: entity})
	return cs
}

func (cs *ChangeSet[T]) Remove(entity T) *ChangeSet[T] {
	cs.entries = append(cs.entries, changeEntry[T]{state: StateDeleted, entity: entity})
	return cs
}

func (cs *ChangeSet[T]) Len() int { return len(cs.entries) }

// buildWriteModels lowers the change set into driver write models: insert
// for added, replace-by-key for modified, delete-by-key for deleted.
func buildWriteModels[T any](model *EntityModel, entries []changeEntry[T]) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, entry := range entries {
		doc, err := encodeEntity(model, entry.entity)
		if err != nil {
			return nil, err
		}

		switch entry.state {
		case StateAdded:
			models = append(models, mongo.NewInsertOneModel().SetDocument(doc))
		case StateModified:
			filter, err := keyFilter(model, entry.entity)
			if err != nil {
				return nil, err
			}
			models = append(models, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc))
		case StateDeleted:
			filter, err := keyFilter(model, entry.entity)
			if err != nil {
				return nil, err
			}
			models = append(models, mongo.NewDeleteOneModel().SetFilter(filter))
		default:
			return nil, fmt.Errorf("unknown entity state %d", entry.state)
		}
	}

	return models, nil
}

func keyFilter[T any](model *EntityModel, entity T) (bson.D, error) {
	keyField := model.Collection().KeyField
	if keyField == "" {
		return nil, fmt.Errorf("entity type %s has no key field", model.Type().Name())
	}

	fb, _ := model.fieldByName(keyField)
	val := reflect.ValueOf(entity)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	return bson.D{{Key: keyField, Value: encodeFieldValue(val.Field(fb.index))}}, nil
}

// encodeEntity builds the stored document field by field from the model
// bindings, so write encoding matches what the shaper reads back (uuid as
// canonical string, Char as int32).
func encodeEntity[T any](model *EntityModel, entity T) (bson.D, error) {
	val := reflect.ValueOf(entity)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("cannot encode nil entity")
		}
		val = val.Elem()
	}

	doc := make(bson.D, 0, len(model.fields))
	for _, fb := range model.fields {
		doc = append(doc, bson.E{Key: fb.name, Value: encodeFieldValue(val.Field(fb.index))})
	}

	return doc, nil
}

var uuidType = reflect.TypeOf(uuid.UUID{})

func encodeFieldValue(v reflect.Value) any {
	switch v.Type() {
	case uuidType:
		return v.Interface().(uuid.UUID).String()
	case charType:
		return int32(v.Interface().(Char))
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return encodeFieldValue(v.Elem())
	case reflect.Slice:
		if needsEncoding(v.Type().Elem()) {
			out := make(bson.A, v.Len())
			for i := 0; i < v.Len(); i++ {
				out[i] = encodeFieldValue(v.Index(i))
			}
			return out
		}
	}

	return v.Interface()
}

// encodeQueryValue applies the write encoding to a filter constant or a
// resolved parameter value, so query comparisons see the same representation
// the change-set writer stored (uuid as canonical string, Char as int32).
func encodeQueryValue(v any) any {
	if v == nil {
		return nil
	}
	return encodeFieldValue(reflect.ValueOf(v))
}

func needsEncoding(t reflect.Type) bool {
	switch t {
	case uuidType, charType:
		return true
	}
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice:
		return needsEncoding(t.Elem())
	}
	return false
}

// SaveChanges flushes the change set against the collection in one ordered
// bulk write.
func (c *Collection[T]) SaveChanges(ctx context.Context, cs *ChangeSet[T]) error {
	if cs == nil || len(cs.entries) == 0 {
		return nil
	}

	models, err := buildWriteModels(c.model, cs.entries)
	if err != nil {
		return err
	}

	return c.querier.BulkWrite(ctx, models)
}
