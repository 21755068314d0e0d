package docql

import (
	"fmt"
	"strings"
)

// Expr is a node in the query expression tree. The tree is owned by this
// package; translation rewrites it into the store's native filter form.
type Expr interface {
	writeTo(sb *strings.Builder)
}

type CmpOp int

const (
	OpEq CmpOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpAnd
	OpOr
)

func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	}
	return "?"
}

// flipped returns the comparison with its operands swapped, for normalizing
// constant-on-left comparisons. And/Or are symmetric.
func (op CmpOp) flipped() CmpOp {
	switch op {
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	}
	return op
}

// FieldExpr references a document field by its stored name.
type FieldExpr struct {
	Name string
}

func (e *FieldExpr) writeTo(sb *strings.Builder) { sb.WriteString(e.Name) }

// ConstantExpr holds a value baked into the query shape. Two queries that
// differ only in constants are distinct shapes.
type ConstantExpr struct {
	Value any
}

func (e *ConstantExpr) writeTo(sb *strings.Builder) { fmt.Fprintf(sb, "%v", e.Value) }

// ParamExpr is a named runtime parameter. Its value is resolved from the
// execution context on every execution, never baked into the compiled query.
// Parameter names share a namespace per query; the reserved "__docql_" prefix
// is rejected.
type ParamExpr struct {
	Name string
}

func (e *ParamExpr) writeTo(sb *strings.Builder) { sb.WriteString("@" + e.Name) }

// BinaryExpr is a comparison or logical combination of two sub-expressions.
type BinaryExpr struct {
	Op    CmpOp
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) writeTo(sb *strings.Builder) {
	sb.WriteByte('(')
	e.Left.writeTo(sb)
	sb.WriteByte(' ')
	sb.WriteString(e.Op.String())
	sb.WriteByte(' ')
	e.Right.writeTo(sb)
	sb.WriteByte(')')
}

// NotExpr negates its operand.
type NotExpr struct {
	Operand Expr
}

func (e *NotExpr) writeTo(sb *strings.Builder) {
	sb.WriteString("!(")
	e.Operand.writeTo(sb)
	sb.WriteByte(')')
}

// InExpr tests membership of a field value in a set of candidates.
type InExpr struct {
	Target Expr
	Values []Expr
}

func (e *InExpr) writeTo(sb *strings.Builder) {
	e.Target.writeTo(sb)
	sb.WriteString(" in [")
	for i, v := range e.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		v.writeTo(sb)
	}
	sb.WriteByte(']')
}

// Constructor helpers. Queries read better built from these than from struct
// literals.

func Field(name string) Expr   { return &FieldExpr{Name: name} }
func Value(v any) Expr         { return &ConstantExpr{Value: v} }
func Param(name string) Expr   { return &ParamExpr{Name: name} }
func Eq(l, r Expr) Expr        { return &BinaryExpr{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) Expr        { return &BinaryExpr{Op: OpNe, Left: l, Right: r} }
func Gt(l, r Expr) Expr        { return &BinaryExpr{Op: OpGt, Left: l, Right: r} }
func Gte(l, r Expr) Expr       { return &BinaryExpr{Op: OpGte, Left: l, Right: r} }
func Lt(l, r Expr) Expr        { return &BinaryExpr{Op: OpLt, Left: l, Right: r} }
func Lte(l, r Expr) Expr       { return &BinaryExpr{Op: OpLte, Left: l, Right: r} }
func And(l, r Expr) Expr       { return &BinaryExpr{Op: OpAnd, Left: l, Right: r} }
func Or(l, r Expr) Expr        { return &BinaryExpr{Op: OpOr, Left: l, Right: r} }
func Not(e Expr) Expr          { return &NotExpr{Operand: e} }
func In(t Expr, vs ...Expr) Expr {
	return &InExpr{Target: t, Values: vs}
}

// ExprString renders the expression in the form used by translation-failure
// diagnostics and shape fingerprints.
func ExprString(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	e.writeTo(&sb)
	return sb.String()
}

// rewriteExpr applies fn bottom-up and returns the rewritten tree. fn
// returning nil keeps the node as rebuilt from its rewritten children.
func rewriteExpr(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}

	switch n := e.(type) {
	case *BinaryExpr:
		e = &BinaryExpr{Op: n.Op, Left: rewriteExpr(n.Left, fn), Right: rewriteExpr(n.Right, fn)}
	case *NotExpr:
		e = &NotExpr{Operand: rewriteExpr(n.Operand, fn)}
	case *InExpr:
		vals := make([]Expr, len(n.Values))
		for i, v := range n.Values {
			vals[i] = rewriteExpr(v, fn)
		}
		e = &InExpr{Target: rewriteExpr(n.Target, fn), Values: vals}
	}

	if out := fn(e); out != nil {
		return out
	}

	return e
}

// walkExpr visits every node top-down. Returning false stops descent into the
// node's children.
func walkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}

	switch n := e.(type) {
	case *BinaryExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *NotExpr:
		walkExpr(n.Operand, fn)
	case *InExpr:
		walkExpr(n.Target, fn)
		for _, v := range n.Values {
			walkExpr(v, fn)
		}
	}
}

// paramNames collects the names of every ParamExpr in the tree, in first
// occurrence order.
func paramNames(e Expr) []string {
	var names []string
	seen := map[string]bool{}
	walkExpr(e, func(node Expr) bool {
		if p, ok := node.(*ParamExpr); ok && !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
		return true
	})

	return names
}

// normalizeExpr canonicalizes a predicate ahead of translation: comparisons
// with the field on the right are flipped, and double negation is collapsed.
func normalizeExpr(e Expr) Expr {
	return rewriteExpr(e, func(node Expr) Expr {
		switch n := node.(type) {
		case *BinaryExpr:
			if n.Op == OpAnd || n.Op == OpOr {
				return nil
			}
			_, leftField := n.Left.(*FieldExpr)
			_, rightField := n.Right.(*FieldExpr)
			if !leftField && rightField {
				return &BinaryExpr{Op: n.Op.flipped(), Left: n.Right, Right: n.Left}
			}
		case *NotExpr:
			if inner, ok := n.Operand.(*NotExpr); ok {
				return inner.Operand
			}
		}
		return nil
	})
}
