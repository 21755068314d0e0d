package docql

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Char is the single-character scalar. It keys its own registry entry
// because a required Char field that is absent from the document is a
// materialization error, never a silent '\0'.
type Char rune

var charType = reflect.TypeOf(Char(0))

// converterFunc coerces one raw document field into a value of the target
// type. present is false when the field is absent from the document.
type converterFunc func(rv bson.RawValue, present bool) (reflect.Value, error)

// scalarConverters is the explicit table of materializable scalar types.
// It is built once at init from the lists below; a pointer variant is
// registered alongside every base entry (nil for missing or null fields).
// Types outside the table fail shaper construction with ErrCannotMaterialize.
var scalarConverters = map[reflect.Type]converterFunc{}

func registerScalar(t reflect.Type, conv converterFunc) {
	scalarConverters[t] = conv
	scalarConverters[reflect.PtrTo(t)] = pointerConverter(t, conv)
}

func pointerConverter(t reflect.Type, conv converterFunc) converterFunc {
	pt := reflect.PtrTo(t)
	return func(rv bson.RawValue, present bool) (reflect.Value, error) {
		if !present || isNullValue(rv) {
			return reflect.Zero(pt), nil
		}
		v, err := conv(rv, true)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t)
		p.Elem().Set(v)
		return p, nil
	}
}

func init() {
	for _, t := range []reflect.Type{
		reflect.TypeOf(int(0)),
		reflect.TypeOf(int8(0)),
		reflect.TypeOf(int16(0)),
		reflect.TypeOf(int32(0)),
		reflect.TypeOf(int64(0)),
	} {
		registerScalar(t, signedConverter(t))
	}

	for _, t := range []reflect.Type{
		reflect.TypeOf(uint(0)),
		reflect.TypeOf(uint8(0)),
		reflect.TypeOf(uint16(0)),
		reflect.TypeOf(uint32(0)),
		reflect.TypeOf(uint64(0)),
	} {
		registerScalar(t, unsignedConverter(t))
	}

	registerScalar(reflect.TypeOf(float32(0)), floatConverter(reflect.TypeOf(float32(0))))
	registerScalar(reflect.TypeOf(float64(0)), floatConverter(reflect.TypeOf(float64(0))))
	registerScalar(reflect.TypeOf(false), convertBool)
	registerScalar(reflect.TypeOf(""), convertString)
	registerScalar(charType, convertChar)
	registerScalar(reflect.TypeOf(time.Time{}), convertTime)
	registerScalar(reflect.TypeOf(uuid.UUID{}), convertUUID)
	registerScalar(reflect.TypeOf(primitive.Decimal128{}), convertDecimal128)
	registerScalar(reflect.TypeOf(primitive.ObjectID{}), convertObjectID)
}

func signedConverter(t reflect.Type) converterFunc {
	return func(rv bson.RawValue, present bool) (reflect.Value, error) {
		out := reflect.New(t).Elem()
		if !present || isNullValue(rv) {
			return out, nil
		}
		n, ok := rv.AsInt64OK()
		if !ok {
			return reflect.Value{}, fmt.Errorf("bson %s is not an integer", rv.Type)
		}
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
		}
		out.SetInt(n)
		return out, nil
	}
}

func unsignedConverter(t reflect.Type) converterFunc {
	return func(rv bson.RawValue, present bool) (reflect.Value, error) {
		out := reflect.New(t).Elem()
		if !present || isNullValue(rv) {
			return out, nil
		}
		n, ok := rv.AsInt64OK()
		if !ok {
			return reflect.Value{}, fmt.Errorf("bson %s is not an integer", rv.Type)
		}
		if n < 0 {
			return reflect.Value{}, fmt.Errorf("value %d is negative for %s", n, t)
		}
		if out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
		}
		out.SetUint(uint64(n))
		return out, nil
	}
}

func floatConverter(t reflect.Type) converterFunc {
	return func(rv bson.RawValue, present bool) (reflect.Value, error) {
		out := reflect.New(t).Elem()
		if !present || isNullValue(rv) {
			return out, nil
		}
		if f, ok := rv.DoubleOK(); ok {
			out.SetFloat(f)
			return out, nil
		}
		if n, ok := rv.AsInt64OK(); ok {
			out.SetFloat(float64(n))
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("bson %s is not numeric", rv.Type)
	}
}

func convertBool(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(false), nil
	}
	b, ok := rv.BooleanOK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not a boolean", rv.Type)
	}
	return reflect.ValueOf(b), nil
}

func convertString(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(""), nil
	}
	s, ok := rv.StringValueOK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not a string", rv.Type)
	}
	return reflect.ValueOf(s), nil
}

// convertChar requires the field to be present and non-null: a missing
// required character has no defensible default.
func convertChar(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.Value{}, fmt.Errorf("required character field is missing")
	}
	if n, ok := rv.AsInt64OK(); ok {
		return reflect.ValueOf(Char(n)), nil
	}
	if s, ok := rv.StringValueOK(); ok {
		runes := []rune(s)
		if len(runes) != 1 {
			return reflect.Value{}, fmt.Errorf("string %q is not a single character", s)
		}
		return reflect.ValueOf(Char(runes[0])), nil
	}
	return reflect.Value{}, fmt.Errorf("bson %s is not a character", rv.Type)
}

func convertTime(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(time.Time{}), nil
	}
	t, ok := rv.TimeOK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not a datetime", rv.Type)
	}
	return reflect.ValueOf(t.UTC()), nil
}

// convertUUID reads the canonical string form, which is how the change-set
// writer stores uuid values.
func convertUUID(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(uuid.UUID{}), nil
	}
	s, ok := rv.StringValueOK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not a uuid string", rv.Type)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(id), nil
}

func convertDecimal128(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(primitive.Decimal128{}), nil
	}
	d, ok := rv.Decimal128OK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not a decimal128", rv.Type)
	}
	return reflect.ValueOf(d), nil
}

func convertObjectID(rv bson.RawValue, present bool) (reflect.Value, error) {
	if !present || isNullValue(rv) {
		return reflect.ValueOf(primitive.NilObjectID), nil
	}
	id, ok := rv.ObjectIDOK()
	if !ok {
		return reflect.Value{}, fmt.Errorf("bson %s is not an object id", rv.Type)
	}
	return reflect.ValueOf(id), nil
}

// sliceConverter materializes array fields element-wise, recursing for
// nested slices. A missing or null field becomes an empty, non-nil slice
// unless nullAsNil is set.
func sliceConverter(t reflect.Type, elemConv converterFunc, nullAsNil bool) converterFunc {
	return func(rv bson.RawValue, present bool) (reflect.Value, error) {
		if !present || isNullValue(rv) {
			if nullAsNil {
				return reflect.Zero(t), nil
			}
			return reflect.MakeSlice(t, 0, 0), nil
		}

		arr, ok := rv.ArrayOK()
		if !ok {
			return reflect.Value{}, fmt.Errorf("bson %s is not an array", rv.Type)
		}
		vals, err := arr.Values()
		if err != nil {
			return reflect.Value{}, err
		}

		out := reflect.MakeSlice(t, len(vals), len(vals))
		for i, v := range vals {
			ev, err := elemConv(v, true)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}

		return out, nil
	}
}

// converterFor resolves the coercion for a target type: a registry hit, a
// slice over a resolvable element type, or a pointer to either. Anything
// else is unmaterializable.
func converterFor(t reflect.Type, nullSliceAsNil bool) (converterFunc, error) {
	if conv, ok := scalarConverters[t]; ok {
		return conv, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		elemConv, err := converterFor(t.Elem(), nullSliceAsNil)
		if err != nil {
			return nil, err
		}
		return sliceConverter(t, elemConv, nullSliceAsNil), nil
	case reflect.Ptr:
		baseConv, err := converterFor(t.Elem(), nullSliceAsNil)
		if err != nil {
			return nil, err
		}
		return pointerConverter(t.Elem(), baseConv), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrCannotMaterialize, t)
}

type shaperColumn struct {
	fieldIndex int
	name       string
	typ        reflect.Type
	conv       converterFunc
}

// documentShaper materializes raw documents into entity values. The entity's
// ordinal field bindings are rebound here to read-by-name lookups followed
// by registry coercion; construction fails up front for any field type
// outside the coercion table.
type documentShaper struct {
	model   *EntityModel
	columns []shaperColumn
}

func newDocumentShaper(model *EntityModel, projection []string, nullSliceAsNil bool) (*documentShaper, error) {
	var include map[string]bool
	if projection != nil {
		include = make(map[string]bool, len(projection))
		for _, f := range projection {
			include[f] = true
		}
	}

	s := &documentShaper{model: model}
	for _, fb := range model.fields {
		if include != nil && !include[fb.name] {
			continue
		}

		conv, err := converterFor(fb.typ, nullSliceAsNil)
		if err != nil {
			return nil, &MaterializationError{Field: fb.name, Type: fb.typ.String(), Cause: err}
		}

		s.columns = append(s.columns, shaperColumn{
			fieldIndex: fb.index,
			name:       fb.name,
			typ:        fb.typ,
			conv:       conv,
		})
	}

	return s, nil
}

// shapeInto fills dest (an addressable struct value of the model type) from
// one raw document.
func (s *documentShaper) shapeInto(doc bson.Raw, dest reflect.Value) error {
	for _, col := range s.columns {
		rv, present := lookupField(doc, col.name)
		v, err := col.conv(rv, present)
		if err != nil {
			return &MaterializationError{Field: col.name, Type: col.typ.String(), Cause: err}
		}
		dest.Field(col.fieldIndex).Set(v)
	}

	return nil
}
