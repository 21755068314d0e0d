package docql

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// paramNamePrefix is reserved for internal markers so user field and
// parameter names can never collide with them.
const paramNamePrefix = "__docql_"

// paramMarker stands in for a runtime parameter value inside a filter
// template. Markers survive compilation and are substituted with live values
// from the execution context on every execution.
type paramMarker struct {
	Name string
}

var cmpOperators = map[CmpOp]string{
	OpNe:  "$ne",
	OpGt:  "$gt",
	OpGte: "$gte",
	OpLt:  "$lt",
	OpLte: "$lte",
}

// translateFilter rewrites a predicate expression into the store's native
// filter form. It returns ok=false when any sub-expression cannot be
// expressed natively; the caller decides whether that rejects the operator.
// The rewrite is pure: parameters become markers, nothing is resolved here.
func translateFilter(e Expr, model *EntityModel) (bson.D, bool) {
	switch n := e.(type) {
	case *BinaryExpr:
		if n.Op == OpAnd || n.Op == OpOr {
			left, ok := translateFilter(n.Left, model)
			if !ok {
				return nil, false
			}
			right, ok := translateFilter(n.Right, model)
			if !ok {
				return nil, false
			}
			key := "$and"
			if n.Op == OpOr {
				key = "$or"
			}
			return bson.D{{Key: key, Value: bson.A{left, right}}}, true
		}
		return translateComparison(n, model)
	case *NotExpr:
		inner, ok := translateFilter(n.Operand, model)
		if !ok {
			return nil, false
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, true
	case *InExpr:
		field, ok := n.Target.(*FieldExpr)
		if !ok {
			return nil, false
		}
		if _, ok := model.fieldByName(field.Name); !ok {
			return nil, false
		}
		vals := make(bson.A, len(n.Values))
		for i, v := range n.Values {
			val, ok := translateValue(v)
			if !ok {
				return nil, false
			}
			vals[i] = val
		}
		return bson.D{{Key: field.Name, Value: bson.D{{Key: "$in", Value: vals}}}}, true
	}

	return nil, false
}

func translateComparison(n *BinaryExpr, model *EntityModel) (bson.D, bool) {
	field, ok := n.Left.(*FieldExpr)
	if !ok {
		// field-to-field comparisons and anything without a field root have
		// no find-filter form
		return nil, false
	}
	if _, ok := model.fieldByName(field.Name); !ok {
		return nil, false
	}

	val, ok := translateValue(n.Right)
	if !ok {
		return nil, false
	}

	if n.Op == OpEq {
		return bson.D{{Key: field.Name, Value: val}}, true
	}

	op, ok := cmpOperators[n.Op]
	if !ok {
		return nil, false
	}

	return bson.D{{Key: field.Name, Value: bson.D{{Key: op, Value: val}}}}, true
}

// translateValue lowers a value-position expression to either a constant or
// a parameter marker. Constants go through the write encoding so they compare
// against documents in their stored form.
func translateValue(e Expr) (any, bool) {
	switch n := e.(type) {
	case *ConstantExpr:
		return encodeQueryValue(n.Value), true
	case *ParamExpr:
		return paramMarker{Name: n.Name}, true
	}
	return nil, false
}

// resolveFilter substitutes every parameter marker in a filter template with
// the live value registered in the execution context. The template itself is
// never mutated; compiled queries share it across executions.
func resolveFilter(tpl bson.D, ec *ExecutionContext) (bson.D, error) {
	out, err := resolveAny(tpl, ec)
	if err != nil {
		return nil, err
	}
	return out.(bson.D), nil
}

func resolveAny(v any, ec *ExecutionContext) (any, error) {
	switch t := v.(type) {
	case paramMarker:
		val, ok := ec.Parameter(t.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, t.Name)
		}
		// parameter values take the write encoding too, like constants do
		// at translation time
		return encodeQueryValue(val), nil
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			val, err := resolveAny(e.Value, ec)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{Key: e.Key, Value: val}
		}
		return out, nil
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			val, err := resolveAny(e, ec)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	}

	return v, nil
}
