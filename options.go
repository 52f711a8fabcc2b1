package vkdecode

// Option configures negotiation and decoder creation.
//
// Example:
//
//	n, err := vkdecode.Negotiate(dev, req, vkdecode.WithAllowProfileMismatch())
//	dec, err := vkdecode.NewDecoder(dev, n, vkdecode.WithThreadCount(4))
type Option func(*options)

// options holds the optional settings shared by Negotiate and NewDecoder.
type options struct {
	allowProfileMismatch bool
	ignoreLevel          bool
	threadCount          int
	statusQueries        bool
	sliceBufferSize      int
	minBitstreamSize     uint64
}

const (
	// DefaultSliceBufferSize is the initial slice buffer of a current picture.
	DefaultSliceBufferSize = 4096

	// DefaultMinBitstreamBufferSize is the smallest staging buffer the pool
	// allocates.
	DefaultMinBitstreamBufferSize = 1 << 20

	// execContextsPerThread sizes the exec pool relative to the decoder
	// thread count.
	execContextsPerThread = 4
)

func defaultOptions() options {
	return options{
		threadCount:      1,
		statusQueries:    true,
		sliceBufferSize:  DefaultSliceBufferSize,
		minBitstreamSize: DefaultMinBitstreamBufferSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithAllowProfileMismatch lets negotiation retry once with the codec's base
// profile when the requested profile is not supported.
func WithAllowProfileMismatch() Option {
	return func(o *options) {
		o.allowProfileMismatch = true
	}
}

// WithIgnoreLevel skips the check of the requested level against the
// device maximum.
func WithIgnoreLevel() Option {
	return func(o *options) {
		o.ignoreLevel = true
	}
}

// WithThreadCount sets the expected number of decoder threads. The exec
// pool holds four contexts per thread. Values below 1 are ignored.
func WithThreadCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threadCount = n
		}
	}
}

// WithStatusQueries enables or disables per-submission result-status
// queries. Queries are only used when the queue supports them.
func WithStatusQueries(enabled bool) Option {
	return func(o *options) {
		o.statusQueries = enabled
	}
}

// WithSliceBufferSize sets the initial slice buffer capacity of a current
// picture. Values below 1 are ignored.
func WithSliceBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sliceBufferSize = n
		}
	}
}

// WithMinBitstreamBufferSize sets the smallest staging buffer the bitstream
// pool allocates. Zero is ignored.
func WithMinBitstreamBufferSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.minBitstreamSize = n
		}
	}
}
