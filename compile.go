package docql

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// Params supplies runtime parameter values for one execution. A value of
// type func() any is treated as a deferred extractor and evaluated when the
// prologue registers it.
type Params map[string]any

// compilationContext sequences the four compile stages for one distinct
// query shape: preprocess, translate, postprocess, compile. It exists for
// the duration of one compilation; the CompiledQuery it produces is cached
// and reused.
type compilationContext struct {
	model     *EntityModel
	queryText string
	ops       []queryOp
	shape     *QueryShape
	card      cardinality
	params    []string
}

func newCompilationContext(model *EntityModel, ops []queryOp, queryText string) *compilationContext {
	return &compilationContext{model: model, ops: ops, queryText: queryText}
}

// preprocess performs the structural rewrites that must happen before the
// switchboard runs: predicates are normalized to their canonical form, and
// native operators are detached from the chain and reattached at the end so
// the translator never sees one between foldable operators.
func (cc *compilationContext) preprocess() error {
	natives := Filter(cc.ops, func(op queryOp) bool { return op.kind == opNative })
	folded := Filter(cc.ops, func(op queryOp) bool { return op.kind != opNative })

	for i, op := range folded {
		if op.pred != nil {
			folded[i].pred = normalizeExpr(op.pred)
			if err := collectParams(folded[i].pred, &cc.params); err != nil {
				return err
			}
		}
		if op.count != nil {
			if err := collectParams(op.count, &cc.params); err != nil {
				return err
			}
		}
	}

	cc.ops = append(folded, natives...)
	return nil
}

func collectParams(e Expr, into *[]string) error {
	for _, name := range paramNames(e) {
		if strings.HasPrefix(name, paramNamePrefix) {
			return fmt.Errorf("parameter name %q uses the reserved prefix %q", name, paramNamePrefix)
		}
		if !SliceContains(*into, name) {
			*into = append(*into, name)
		}
	}
	return nil
}

// translate runs the operator switchboard over the chain.
func (cc *compilationContext) translate() error {
	shape, card, err := translateOps(cc.model, cc.ops, cc.queryText)
	if err != nil {
		return err
	}

	cc.shape = shape
	cc.card = card
	return nil
}

// postprocess validates the accumulated shape and freezes it; nothing on the
// execution path mutates it afterwards.
func (cc *compilationContext) postprocess() error {
	if cc.shape.Collection().Type == nil {
		return fmt.Errorf("query shape has no collection root")
	}

	cc.shape.freeze()
	return nil
}

// compileQuery runs the full pipeline and produces the reusable executable
// for one query shape.
func compileQuery[T any](c *Collection[T], q Query[T]) (*CompiledQuery[T], error) {
	cc := newCompilationContext(c.model, q.ops, q.String())

	if err := cc.preprocess(); err != nil {
		return nil, err
	}
	if err := cc.translate(); err != nil {
		return nil, err
	}
	if err := cc.postprocess(); err != nil {
		return nil, err
	}

	var shaper *documentShaper
	if cc.card != cardCount {
		var err error
		shaper, err = newDocumentShaper(c.model, cc.shape.projection, c.provider.nullSliceAsNil)
		if err != nil {
			return nil, err
		}
	}

	cq := &CompiledQuery[T]{
		collection: c,
		shape:      cc.shape,
		card:       cc.card,
		params:     cc.params,
		shaper:     shaper,
		queryText:  cc.queryText,
	}
	cq.run = cq.buildRunner()

	return cq, nil
}

// CompiledQuery is the executable produced for one distinct query shape. It
// is safe to reuse across many executions; parameter values are resolved per
// execution, never baked in.
type CompiledQuery[T any] struct {
	collection *Collection[T]
	shape      *QueryShape
	card       cardinality
	params     []string
	shaper     *documentShaper
	queryText  string
	run        func(ctx context.Context, ec *ExecutionContext) (DocumentCursor, error)
}

// buildRunner assembles the delegate that contacts the store: splice the
// native collection root into a Finder, apply the shape's filter and limit,
// replay the residual, open the cursor.
func (cq *CompiledQuery[T]) buildRunner() func(ctx context.Context, ec *ExecutionContext) (DocumentCursor, error) {
	return func(ctx context.Context, ec *ExecutionContext) (DocumentCursor, error) {
		finder, err := cq.buildFinder(ec)
		if err != nil {
			return nil, err
		}
		return finder.Cursor(ctx)
	}
}

func (cq *CompiledQuery[T]) buildFinder(ec *ExecutionContext) (*Finder, error) {
	finder := newFinder(cq.collection.querier)

	if cq.shape.hasFilter {
		filter, err := resolveFilter(cq.shape.filter, ec)
		if err != nil {
			return nil, err
		}
		finder = finder.Filter(filter)
	}

	limit, hasLimit, err := cq.shape.effectiveLimit(ec)
	if err != nil {
		return nil, err
	}
	if hasLimit {
		finder = finder.Limit(limit)
	}

	if cq.shape.projection != nil {
		finder = finder.Project(cq.shape.projection...)
	}

	if cq.shape.residual != nil {
		finder = cq.shape.residual(finder)
	}

	return finder, nil
}

// prologue registers every captured parameter's live value into the
// execution context before the query body runs.
func (cq *CompiledQuery[T]) prologue(ec *ExecutionContext, params Params) error {
	for _, name := range cq.params {
		v, ok := params[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}
		ec.SetParameter(name, v)
	}
	return nil
}

func (cq *CompiledQuery[T]) newExecution(params Params) (*ExecutionContext, error) {
	p := cq.collection.provider
	ec := newExecutionContext(p.logger, p.detectConcurrency, p.trackingInit)
	if err := cq.prologue(ec, params); err != nil {
		return nil, err
	}
	return ec, nil
}

// Iterate executes the query and returns the streaming enumerator. Valid for
// sequence-shaped queries only.
func (cq *CompiledQuery[T]) Iterate(ctx context.Context, params Params) (*DocumentIterator[T], error) {
	if cq.card != cardMany {
		return nil, fmt.Errorf("query does not produce a sequence: %s", cq.queryText)
	}

	ec, err := cq.newExecution(params)
	if err != nil {
		return nil, err
	}

	return newDocumentIterator[T](ec, cq.shaper, func(ctx context.Context) (DocumentCursor, error) {
		return cq.run(ctx, ec)
	}), nil
}

// All executes the query and drains the enumerator.
func (cq *CompiledQuery[T]) All(ctx context.Context, params Params) ([]T, error) {
	it, err := cq.Iterate(ctx, params)
	if err != nil {
		return nil, err
	}
	defer it.Close(ctx)

	var out []T
	for {
		item, err := it.Next(ctx)
		if err != nil {
			if err == ErrIterationDone {
				return out, nil
			}
			return nil, err
		}
		out = append(out, *item)
	}
}

// One executes a single-result query and enforces its cardinality on the
// client: the store is asked for all matches and the first (or only) one is
// taken, matching the translator's decision not to push a limit of 1.
func (cq *CompiledQuery[T]) One(ctx context.Context, params Params) (T, error) {
	var zero T

	switch cq.card {
	case cardFirst, cardFirstOrDefault, cardSingle, cardSingleOrDefault:
	default:
		return zero, fmt.Errorf("query does not produce a single result: %s", cq.queryText)
	}

	ec, err := cq.newExecution(params)
	if err != nil {
		return zero, err
	}

	it := newDocumentIterator[T](ec, cq.shaper, func(ctx context.Context) (DocumentCursor, error) {
		return cq.run(ctx, ec)
	})
	defer it.Close(ctx)

	first, err := it.Next(ctx)
	if err == ErrIterationDone {
		if cq.card == cardFirstOrDefault || cq.card == cardSingleOrDefault {
			return zero, nil
		}
		return zero, ErrNoResult
	}
	if err != nil {
		return zero, err
	}

	if cq.card == cardSingle || cq.card == cardSingleOrDefault {
		if _, err := it.Next(ctx); err != ErrIterationDone {
			if err != nil {
				return zero, err
			}
			return zero, ErrMoreThanOneResult
		}
	}

	return *first, nil
}

// Count executes a count-shaped query.
func (cq *CompiledQuery[T]) Count(ctx context.Context, params Params) (int64, error) {
	if cq.card != cardCount {
		return 0, fmt.Errorf("query does not produce a count: %s", cq.queryText)
	}

	ec, err := cq.newExecution(params)
	if err != nil {
		return 0, err
	}

	finder, err := cq.buildFinder(ec)
	if err != nil {
		return 0, err
	}

	n, err := finder.Count(ctx)
	if err != nil {
		cq.collection.provider.logger.Error("count query failed",
			zap.String("collection", cq.shape.Collection().Name),
			zap.Error(err))
		return 0, err
	}

	return n, nil
}

// compiledKey identifies one cached executable: the entity type, the bound
// collection name and the query's printable shape. The collection name is
// part of the key so two collections of the same entity type on one provider
// never share an executable.
type compiledKey struct {
	typ        reflect.Type
	collection string
	text       string
}
