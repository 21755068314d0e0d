package docql

import (
	"strings"
)

type opKind int

const (
	opWhere opKind = iota
	opTake
	opSelect
	opFirst
	opFirstOrDefault
	opSingle
	opSingleOrDefault
	opCount
	opNative
	opSkip
	opOrderBy
	opOrderByDesc
	opDistinct
	opGroupBy
	opJoin
	opUnion
	opIntersect
	opExcept
	opConcat
	opSum
	opAverage
	opMin
	opMax
	opAny
	opAll
	opLast
	opLastOrDefault
	opReverse
	opElementAt
)

var opNames = map[opKind]string{
	opWhere:           "Where",
	opTake:            "Take",
	opSelect:          "Select",
	opFirst:           "First",
	opFirstOrDefault:  "FirstOrDefault",
	opSingle:          "Single",
	opSingleOrDefault: "SingleOrDefault",
	opCount:           "Count",
	opNative:          "Native",
	opSkip:            "Skip",
	opOrderBy:         "OrderBy",
	opOrderByDesc:     "OrderByDescending",
	opDistinct:        "Distinct",
	opGroupBy:         "GroupBy",
	opJoin:            "Join",
	opUnion:           "Union",
	opIntersect:       "Intersect",
	opExcept:          "Except",
	opConcat:          "Concat",
	opSum:             "Sum",
	opAverage:         "Average",
	opMin:             "Min",
	opMax:             "Max",
	opAny:             "Any",
	opAll:             "All",
	opLast:            "Last",
	opLastOrDefault:   "LastOrDefault",
	opReverse:         "Reverse",
	opElementAt:       "ElementAt",
}

func (k opKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return "Unknown"
}

// NativeFunc customizes the driver-level find directly. It is replayed
// against the Finder at execution time instead of being folded into the
// query shape.
type NativeFunc func(f *Finder) *Finder

type queryOp struct {
	kind   opKind
	pred   Expr
	count  Expr
	fields []string
	native NativeFunc
}

// Query is an immutable operator chain over entity type T. Each method
// returns a new chain; nothing executes until the query is compiled and the
// compiled query is run against a collection.
type Query[T any] struct {
	ops []queryOp
}

// From starts a query over the collection mapped to T.
func From[T any]() Query[T] {
	return Query[T]{}
}

func (q Query[T]) append(op queryOp) Query[T] {
	ops := make([]queryOp, len(q.ops), len(q.ops)+1)
	copy(ops, q.ops)
	return Query[T]{ops: append(ops, op)}
}

// Where adds a predicate. Repeated Where calls compose with logical AND.
func (q Query[T]) Where(pred Expr) Query[T] {
	return q.append(queryOp{kind: opWhere, pred: pred})
}

// Take caps the result count. Repeated Take calls keep the smaller cap.
func (q Query[T]) Take(n int) Query[T] {
	return q.append(queryOp{kind: opTake, count: Value(n)})
}

// TakeParam caps the result count with a runtime parameter.
func (q Query[T]) TakeParam(name string) Query[T] {
	return q.append(queryOp{kind: opTake, count: Param(name)})
}

// Select projects the query down to the named fields. Unlisted fields stay at
// their zero value after shaping.
func (q Query[T]) Select(fields ...string) Query[T] {
	return q.append(queryOp{kind: opSelect, fields: fields})
}

// First and its family change result cardinality only. The limit is not
// pushed to the store; single-result semantics are enforced after the fetch.
func (q Query[T]) First() Query[T]  { return q.append(queryOp{kind: opFirst}) }
func (q Query[T]) Single() Query[T] { return q.append(queryOp{kind: opSingle}) }
func (q Query[T]) FirstOrDefault() Query[T] {
	return q.append(queryOp{kind: opFirstOrDefault})
}
func (q Query[T]) SingleOrDefault() Query[T] {
	return q.append(queryOp{kind: opSingleOrDefault})
}

// Count turns the query into a document count.
func (q Query[T]) Count() Query[T] { return q.append(queryOp{kind: opCount}) }

// Native records a driver-level find customization. At most one per query;
// no operator can be folded after it.
func (q Query[T]) Native(fn NativeFunc) Query[T] {
	return q.append(queryOp{kind: opNative, native: fn})
}

// The operators below are recognized but have no native translation. They
// exist so a chain containing them fails compilation with a hard
// not-supported error instead of being silently dropped.

func (q Query[T]) Skip(n int) Query[T] {
	return q.append(queryOp{kind: opSkip, count: Value(n)})
}
func (q Query[T]) OrderBy(field string) Query[T] {
	return q.append(queryOp{kind: opOrderBy, fields: []string{field}})
}
func (q Query[T]) OrderByDescending(field string) Query[T] {
	return q.append(queryOp{kind: opOrderByDesc, fields: []string{field}})
}
func (q Query[T]) Distinct() Query[T] { return q.append(queryOp{kind: opDistinct}) }
func (q Query[T]) GroupBy(field string) Query[T] {
	return q.append(queryOp{kind: opGroupBy, fields: []string{field}})
}
func (q Query[T]) Join(other string) Query[T] {
	return q.append(queryOp{kind: opJoin, fields: []string{other}})
}
func (q Query[T]) Union(other Query[T]) Query[T]     { return q.append(queryOp{kind: opUnion}) }
func (q Query[T]) Intersect(other Query[T]) Query[T] { return q.append(queryOp{kind: opIntersect}) }
func (q Query[T]) Except(other Query[T]) Query[T]    { return q.append(queryOp{kind: opExcept}) }
func (q Query[T]) Concat(other Query[T]) Query[T]    { return q.append(queryOp{kind: opConcat}) }
func (q Query[T]) Sum(field string) Query[T] {
	return q.append(queryOp{kind: opSum, fields: []string{field}})
}
func (q Query[T]) Average(field string) Query[T] {
	return q.append(queryOp{kind: opAverage, fields: []string{field}})
}
func (q Query[T]) Min(field string) Query[T] {
	return q.append(queryOp{kind: opMin, fields: []string{field}})
}
func (q Query[T]) Max(field string) Query[T] {
	return q.append(queryOp{kind: opMax, fields: []string{field}})
}
func (q Query[T]) Any() Query[T]     { return q.append(queryOp{kind: opAny}) }
func (q Query[T]) All(pred Expr) Query[T] {
	return q.append(queryOp{kind: opAll, pred: pred})
}
func (q Query[T]) Last() Query[T] { return q.append(queryOp{kind: opLast}) }
func (q Query[T]) LastOrDefault() Query[T] {
	return q.append(queryOp{kind: opLastOrDefault})
}
func (q Query[T]) Reverse() Query[T] { return q.append(queryOp{kind: opReverse}) }
func (q Query[T]) ElementAt(n int) Query[T] {
	return q.append(queryOp{kind: opElementAt, count: Value(n)})
}

// String renders the chain for diagnostics and cache keys. Constants are part
// of the rendering, parameter values are not, so two executions of the same
// shape share one compiled query.
func (q Query[T]) String() string {
	var sb strings.Builder
	sb.WriteString("from")
	for _, op := range q.ops {
		sb.WriteByte('.')
		sb.WriteString(op.kind.String())
		sb.WriteByte('(')
		switch {
		case op.pred != nil:
			sb.WriteString(ExprString(op.pred))
		case op.count != nil:
			sb.WriteString(ExprString(op.count))
		case len(op.fields) > 0:
			sb.WriteString(strings.Join(op.fields, ", "))
		case op.native != nil:
			sb.WriteString("<native>")
		}
		sb.WriteByte(')')
	}

	return sb.String()
}
