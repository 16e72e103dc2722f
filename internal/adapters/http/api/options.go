package api

import "github.com/okian/fibertrace/pkg/logger"

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultSeriesSteps    = 50
	maxSeriesSteps        = 1000
	defaultIdentityHeader = "X-Submitted-By"
)

type options struct {
	logger         logger.Logger
	maxBodyBytes   int64
	identityHeader string
}

// Option configures the API server.
type Option func(*options)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithIdentityHeader sets the header carrying the caller identity set by the
// upstream identity proxy.
func WithIdentityHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.identityHeader = name
		}
	}
}

func newOptions(opts ...Option) options {
	o := options{
		maxBodyBytes:   defaultMaxBodyBytes,
		identityHeader: defaultIdentityHeader,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	return o
}
