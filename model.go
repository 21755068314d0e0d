package docql

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

// CollectionRef identifies the logical collection a query shape reads from.
// Equality is structural (by entity type), so compiled-query caching can key
// on it.
type CollectionRef struct {
	Type reflect.Type
	Name string
}

// CollectionDef carries the resolved storage identity of an entity type.
type CollectionDef struct {
	Name     string
	KeyField string
}

type fieldBinding struct {
	ordinal int
	index   int // struct field index
	name    string
	typ     reflect.Type
	isKey   bool
	// required marks fields whose absence is a materialization error rather
	// than a zero value. Only Char carries this today.
	required bool
}

// EntityModel is the per-type metadata the translator and shaper work from:
// field bindings in ordinal (struct declaration) order, keyed lookups by
// stored name, and the collection identity.
type EntityModel struct {
	typ        reflect.Type
	collection CollectionDef
	fields     []fieldBinding
	byName     map[string]int
}

func (m *EntityModel) Type() reflect.Type        { return m.typ }
func (m *EntityModel) Collection() CollectionDef { return m.collection }

func (m *EntityModel) ref() CollectionRef {
	return CollectionRef{Type: m.typ, Name: m.collection.Name}
}

func (m *EntityModel) fieldByName(name string) (fieldBinding, bool) {
	i, ok := m.byName[name]
	if !ok {
		return fieldBinding{}, false
	}
	return m.fields[i], true
}

var (
	modelMu    sync.RWMutex
	modelCache = map[reflect.Type]*EntityModel{}
)

// modelFor builds (or returns the cached) EntityModel for T. Field names come
// from bson tags; untagged exported fields default to the lowercased field
// name the way the bson codec does. The collection name is the snake_case
// form of the type name unless overridden at collection creation.
func modelFor[T any]() (*EntityModel, error) {
	var entity T
	typ := reflect.TypeOf(entity)
	if typ == nil {
		return nil, fmt.Errorf("cannot build model for interface type")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type must be a struct, got %s", typ.Kind())
	}

	modelMu.RLock()
	if m, ok := modelCache[typ]; ok {
		modelMu.RUnlock()
		return m, nil
	}
	modelMu.RUnlock()

	m, err := buildModel(typ)
	if err != nil {
		return nil, err
	}

	modelMu.Lock()
	modelCache[typ] = m
	modelMu.Unlock()

	return m, nil
}

func buildModel(typ reflect.Type) (*EntityModel, error) {
	m := &EntityModel{
		typ:        typ,
		collection: CollectionDef{Name: strcase.ToSnake(typ.Name())},
		byName:     map[string]int{},
	}

	ordinal := 0
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name, isKey := parseBSONTag(field)
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, paramNamePrefix) {
			return nil, fmt.Errorf("field %s.%s: name prefix %q is reserved", typ.Name(), field.Name, paramNamePrefix)
		}
		if name == "_id" {
			isKey = true
		}

		fb := fieldBinding{
			ordinal:  ordinal,
			index:    i,
			name:     name,
			typ:      field.Type,
			isKey:    isKey,
			required: field.Type == charType,
		}
		m.fields = append(m.fields, fb)
		m.byName[name] = ordinal
		ordinal++

		if isKey && m.collection.KeyField == "" {
			m.collection.KeyField = name
		}
	}

	if len(m.fields) == 0 {
		return nil, fmt.Errorf("entity type %s has no mapped fields", typ.Name())
	}

	return m, nil
}

func parseBSONTag(field reflect.StructField) (name string, isKey bool) {
	tag, ok := field.Tag.Lookup("bson")
	if !ok {
		return strings.ToLower(field.Name), false
	}

	parts := strings.Split(tag, ",")
	name = strings.TrimSpace(parts[0])
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = strings.ToLower(field.Name)
	}

	for _, opt := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(opt), "key") {
			isKey = true
		}
	}

	return name, isKey
}
