package docql

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

type iteratorState int

const (
	iterNotStarted iteratorState = iota
	iterActive
	iterDone
)

// DocumentIterator streams shaped results out of a store cursor. The cursor
// is opened lazily on the first Next call; that call is the only point where
// the store is contacted for this execution. Items come back strictly in
// cursor order.
//
// An iterator is single-consumer. With concurrency detection enabled on the
// provider, concurrent Next calls over the same execution context fail with
// ErrConcurrentIteration. There is no Reset; a new execution means a new
// iterator.
type DocumentIterator[T any] struct {
	ec     *ExecutionContext
	shaper *documentShaper
	open   func(ctx context.Context) (DocumentCursor, error)
	cur    DocumentCursor
	state  iteratorState
	closed bool
}

func newDocumentIterator[T any](ec *ExecutionContext, shaper *documentShaper, open func(ctx context.Context) (DocumentCursor, error)) *DocumentIterator[T] {
	return &DocumentIterator[T]{ec: ec, shaper: shaper, open: open}
}

// Next advances to the next document and shapes it. It returns
// ErrIterationDone once the cursor is exhausted; any other error aborts the
// enumeration at the failing row. Cancellation is observed before any work,
// and store errors are logged (classified as cancellation or failure) then
// returned unchanged.
func (it *DocumentIterator[T]) Next(ctx context.Context) (*T, error) {
	if err := it.ec.enter(); err != nil {
		return nil, err
	}
	defer it.ec.exit()

	if it.state == iterDone {
		return nil, ErrIterationDone
	}

	if err := ctx.Err(); err != nil {
		return nil, it.fail(err)
	}

	if it.state == iterNotStarted {
		cur, err := it.open(ctx)
		if err != nil {
			it.state = iterDone
			return nil, it.fail(err)
		}
		it.cur = cur
		it.state = iterActive
	}

	if !it.cur.Next(ctx) {
		it.state = iterDone
		if err := it.cur.Err(); err != nil {
			return nil, it.fail(err)
		}
		if err := ctx.Err(); err != nil {
			return nil, it.fail(err)
		}
		return nil, ErrIterationDone
	}

	it.ec.initTracking(ctx)

	var item T
	dest := reflect.ValueOf(&item).Elem()
	if err := it.shaper.shapeInto(it.cur.Current(), dest); err != nil {
		it.state = iterDone
		return nil, it.fail(err)
	}

	return &item, nil
}

// fail logs the error by classification and returns it unchanged; this layer
// never wraps or masks store errors.
func (it *DocumentIterator[T]) fail(err error) error {
	if isCancellation(err) {
		it.ec.logger.Debug("query enumeration canceled", zap.Error(err))
	} else {
		it.ec.logger.Error("query enumeration failed", zap.Error(err))
	}
	return err
}

// Close releases the underlying cursor. It is idempotent and safe to call
// before exhaustion; the cursor is released exactly once.
func (it *DocumentIterator[T]) Close(ctx context.Context) error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.state = iterDone

	if it.cur == nil {
		return nil
	}
	return it.cur.Close(ctx)
}
