package api

// CallOptions holds the per-call settings of a Context operation.
type CallOptions struct {
	// Store names the storage to use. Empty means the default.
	Store string
}

// Option configures a single Context operation.
type Option func(*CallOptions)

// WithStore routes the operation to the named store.
func WithStore(name string) Option {
	return func(o *CallOptions) {
		o.Store = name
	}
}

// ApplyOptions folds opts into a CallOptions value. Nil options are skipped.
func ApplyOptions(opts []Option) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	return o
}
