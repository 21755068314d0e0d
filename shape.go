package docql

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// QueryShape accumulates the store-native operations applied while the
// operator chain is translated: the collection root, a filter template, a
// result cap, an optional projection and at most one residual. It is mutated
// only during the single-threaded translate phase, frozen by postprocessing,
// and read-only on the execution path.
type QueryShape struct {
	collection CollectionRef
	filter     bson.D
	hasFilter  bool
	// limits keeps every applied cap; parameterized caps can only be
	// minimized once live values are known, so the effective limit is
	// computed per execution.
	limits     []any
	projection []string
	residual   NativeFunc
	frozen     bool
}

func newQueryShape(ref CollectionRef) *QueryShape {
	return &QueryShape{collection: ref}
}

func (s *QueryShape) Collection() CollectionRef { return s.collection }

// ApplyPredicate folds a translated filter into the shape. A second
// predicate composes with logical AND. Folding after a residual has been
// captured is rejected: translation must finish before the shape goes
// residual.
func (s *QueryShape) ApplyPredicate(filter bson.D) error {
	if err := s.foldable("predicate"); err != nil {
		return err
	}

	if !s.hasFilter {
		s.filter = filter
		s.hasFilter = true
		return nil
	}

	s.filter = bson.D{{Key: "$and", Value: bson.A{s.filter, filter}}}
	return nil
}

// ApplyLimit folds a result cap. v is either an int64 or a paramMarker.
// Repeated caps keep the minimum.
func (s *QueryShape) ApplyLimit(v any) error {
	if err := s.foldable("limit"); err != nil {
		return err
	}

	switch v.(type) {
	case int64, paramMarker:
	default:
		return fmt.Errorf("limit must be an integer constant or parameter, got %T", v)
	}

	s.limits = append(s.limits, v)
	return nil
}

// ApplyProjection restricts shaping to the named fields.
func (s *QueryShape) ApplyProjection(fields []string) error {
	if err := s.foldable("projection"); err != nil {
		return err
	}
	if s.projection != nil {
		return fmt.Errorf("projection already applied")
	}

	s.projection = fields
	return nil
}

// CaptureResidual records the driver-level find customization to replay
// against the Finder at execution time. At most one residual per shape; once
// set, nothing further can be folded.
func (s *QueryShape) CaptureResidual(fn NativeFunc) error {
	if err := s.foldable("residual"); err != nil {
		return err
	}

	s.residual = fn
	return nil
}

func (s *QueryShape) foldable(what string) error {
	if s.frozen {
		return fmt.Errorf("cannot apply %s: query shape is frozen", what)
	}
	if s.residual != nil {
		return fmt.Errorf("cannot apply %s after a native residual", what)
	}
	return nil
}

func (s *QueryShape) freeze() { s.frozen = true }

// effectiveLimit resolves all applied caps against the execution context and
// returns the smallest.
func (s *QueryShape) effectiveLimit(ec *ExecutionContext) (int64, bool, error) {
	if len(s.limits) == 0 {
		return 0, false, nil
	}

	min := int64(0)
	for i, v := range s.limits {
		resolved, err := resolveAny(v, ec)
		if err != nil {
			return 0, false, err
		}
		n, err := toInt64(resolved)
		if err != nil {
			return 0, false, fmt.Errorf("limit: %w", err)
		}
		if n < 0 {
			return 0, false, fmt.Errorf("limit must not be negative, got %d", n)
		}
		if i == 0 || n < min {
			min = n
		}
	}

	return min, true, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("expected integer value, got %T", v)
}
