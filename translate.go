package docql

import (
	"fmt"
)

// cardinality is the declared result expectation of a compiled query.
type cardinality int

const (
	cardMany cardinality = iota
	cardFirst
	cardFirstOrDefault
	cardSingle
	cardSingleOrDefault
	cardCount
)

type outcomeKind int

const (
	outcomeTranslated outcomeKind = iota
	outcomeUnsupported
	outcomeDeferred
)

// translateResult is the tagged outcome of one switchboard arm: the operator
// was folded into the shape, rejected outright, or deferred into the
// residual.
type translateResult struct {
	outcome outcomeKind
	err     error
}

func translated() translateResult {
	return translateResult{outcome: outcomeTranslated}
}

func unsupported(op opKind, reason string) translateResult {
	return translateResult{
		outcome: outcomeUnsupported,
		err:     &UnsupportedOperatorError{Operator: op.String(), Reason: reason},
	}
}

func deferred() translateResult {
	return translateResult{outcome: outcomeDeferred}
}

func failed(err error) translateResult {
	return translateResult{outcome: outcomeUnsupported, err: err}
}

// translationContext carries the per-query state the switchboard arms mutate.
type translationContext struct {
	model     *EntityModel
	shape     *QueryShape
	card      cardinality
	queryText string
}

type operatorTranslator func(tc *translationContext, op queryOp) translateResult

// operatorTable is the per-operator switchboard. Every operator the query
// front end can produce has an arm; missing entries would be a bug, which
// translateOps turns into a hard error rather than a silent skip.
var operatorTable = map[opKind]operatorTranslator{
	opWhere:  translateWhere,
	opTake:   translateTake,
	opSelect: translateSelect,
	opNative: translateNative,
	opCount:  translateCount,

	// Cardinality pass-throughs. No server-side limit 1 is pushed; the
	// executor enforces single-result semantics after the fetch.
	opFirst:           cardinalityArm(cardFirst),
	opFirstOrDefault:  cardinalityArm(cardFirstOrDefault),
	opSingle:          cardinalityArm(cardSingle),
	opSingleOrDefault: cardinalityArm(cardSingleOrDefault),

	// No native translation exists for these. Each rejects hard so a chain
	// containing one fails compilation instead of returning a partially
	// correct result.
	opSkip:          rejectArm(opSkip, "offset paging is not modeled"),
	opOrderBy:       rejectArm(opOrderBy, "server-side ordering is not translated"),
	opOrderByDesc:   rejectArm(opOrderByDesc, "server-side ordering is not translated"),
	opDistinct:      rejectArm(opDistinct, ""),
	opGroupBy:       rejectArm(opGroupBy, ""),
	opJoin:          rejectArm(opJoin, ""),
	opUnion:         rejectArm(opUnion, ""),
	opIntersect:     rejectArm(opIntersect, ""),
	opExcept:        rejectArm(opExcept, ""),
	opConcat:        rejectArm(opConcat, ""),
	opSum:           rejectArm(opSum, "server-side aggregation is not translated"),
	opAverage:       rejectArm(opAverage, "server-side aggregation is not translated"),
	opMin:           rejectArm(opMin, "server-side aggregation is not translated"),
	opMax:           rejectArm(opMax, "server-side aggregation is not translated"),
	opAny:           rejectArm(opAny, ""),
	opAll:           rejectArm(opAll, ""),
	opLast:          rejectArm(opLast, ""),
	opLastOrDefault: rejectArm(opLastOrDefault, ""),
	opReverse:       rejectArm(opReverse, ""),
	opElementAt:     rejectArm(opElementAt, ""),
}

// translateOps walks the operator chain, creating the root query shape bound
// to the entity's collection identity and dispatching each operator through
// the switchboard.
func translateOps(model *EntityModel, ops []queryOp, queryText string) (*QueryShape, cardinality, error) {
	tc := &translationContext{
		model:     model,
		shape:     newQueryShape(model.ref()),
		card:      cardMany,
		queryText: queryText,
	}

	for _, op := range ops {
		arm, ok := operatorTable[op.kind]
		if !ok {
			return nil, 0, fmt.Errorf("no translation arm for operator %s", op.kind)
		}

		res := arm(tc, op)
		switch res.outcome {
		case outcomeTranslated:
		case outcomeDeferred:
			if err := tc.shape.CaptureResidual(op.native); err != nil {
				return nil, 0, err
			}
		case outcomeUnsupported:
			return nil, 0, res.err
		}
	}

	return tc.shape, tc.card, nil
}

func translateWhere(tc *translationContext, op queryOp) translateResult {
	filter, ok := translateFilter(op.pred, tc.model)
	if !ok {
		return failed(&TranslationError{QueryText: tc.queryText})
	}
	if err := tc.shape.ApplyPredicate(filter); err != nil {
		return failed(err)
	}
	return translated()
}

func translateTake(tc *translationContext, op queryOp) translateResult {
	val, ok := translateValue(op.count)
	if !ok {
		return failed(&TranslationError{QueryText: tc.queryText})
	}
	if _, isParam := val.(paramMarker); !isParam {
		c, err := toInt64(val)
		if err != nil {
			return failed(fmt.Errorf("take count: %w", err))
		}
		if c < 0 {
			return failed(fmt.Errorf("take count must not be negative, got %d", c))
		}
		val = c
	}
	if err := tc.shape.ApplyLimit(val); err != nil {
		return failed(err)
	}
	return translated()
}

func translateSelect(tc *translationContext, op queryOp) translateResult {
	if len(op.fields) == 0 {
		return unsupported(opSelect, "empty projection")
	}
	for _, f := range op.fields {
		if _, ok := tc.model.fieldByName(f); !ok {
			return unsupported(opSelect, fmt.Sprintf("unknown field %q", f))
		}
	}
	if err := tc.shape.ApplyProjection(op.fields); err != nil {
		return failed(err)
	}
	return translated()
}

func translateNative(tc *translationContext, op queryOp) translateResult {
	if op.native == nil {
		return failed(fmt.Errorf("native operator with nil function"))
	}
	return deferred()
}

func translateCount(tc *translationContext, op queryOp) translateResult {
	if tc.card != cardMany {
		return unsupported(opCount, "count after a cardinality operator")
	}
	tc.card = cardCount
	return translated()
}

func cardinalityArm(card cardinality) operatorTranslator {
	return func(tc *translationContext, op queryOp) translateResult {
		if tc.card != cardMany {
			return unsupported(op.kind, "cardinality already set")
		}
		tc.card = card
		return translated()
	}
}

func rejectArm(kind opKind, reason string) operatorTranslator {
	return func(tc *translationContext, op queryOp) translateResult {
		return unsupported(kind, reason)
	}
}
