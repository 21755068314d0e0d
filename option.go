package docql

type ProviderOption func(o *providerOption)

type providerOption struct {
	logger            Logger
	detectConcurrency bool
	trackingInit      TrackingInitializer
	nullSliceAsNil    bool
}

func WithLogger(l Logger) ProviderOption {
	return func(o *providerOption) {
		o.logger = l
	}
}

// WithConcurrencyDetection makes illegal concurrent use of one execution
// context fail with ErrConcurrentIteration instead of racing.
func WithConcurrencyDetection() ProviderOption {
	return func(o *providerOption) {
		o.detectConcurrency = true
	}
}

// WithTrackingInitializer installs the identity-resolution hook fired once
// per query execution, on the first materialized document.
func WithTrackingInitializer(init TrackingInitializer) ProviderOption {
	return func(o *providerOption) {
		o.trackingInit = init
	}
}

// WithNullSlicesAsNil makes missing or null array fields shape to nil
// instead of the default empty slice.
func WithNullSlicesAsNil() ProviderOption {
	return func(o *providerOption) {
		o.nullSliceAsNil = true
	}
}

type CollectionOption func(o *collectionOption)

type collectionOption struct {
	name    string
	querier CollectionQuerier
}

// WithCollectionName overrides the snake_case naming convention.
func WithCollectionName(name string) CollectionOption {
	return func(o *collectionOption) {
		o.name = name
	}
}

// withQuerier swaps the store backend; the in-memory backend and tests use
// it.
func withQuerier(q CollectionQuerier) CollectionOption {
	return func(o *collectionOption) {
		o.querier = q
	}
}
