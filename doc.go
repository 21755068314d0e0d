// Package docql compiles typed queries into MongoDB find operations and
// shapes the resulting documents back into Go values.
//
// A Query[T] is an operator chain (Where, Take, Select, ...) over an
// expression tree owned by this package. Compiling a query runs a fixed
// pipeline: preprocess, translate, postprocess, compile. Translation folds
// supported operators into a QueryShape (native filter, limit, projection,
// collection root); everything outside the supported subset fails compilation
// with ErrNotSupported rather than producing an approximate result. The
// compiled query is cached per expression shape and reused across executions
// with different parameter values.
//
// Execution opens a forward-only cursor lazily on the first advancement of a
// DocumentIterator and materializes each document through a per-type shaper
// built from an explicit coercion registry.
package docql
