package repository

import "time"

const (
	defaultTable        = "reference_samples"
	defaultMaxOpenConns = 10
	defaultConnLifetime = time.Hour
	defaultLoadTimeout  = 30 * time.Second
)

type options struct {
	table        string
	maxOpenConns int
	connLifetime time.Duration
	loadTimeout  time.Duration
	now          func() time.Time
}

func newOptions(opts ...Option) options {
	o := options{
		table:        defaultTable,
		maxOpenConns: defaultMaxOpenConns,
		connLifetime: defaultConnLifetime,
		loadTimeout:  defaultLoadTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithTable sets the table name; a schema may be given as "schema.table".
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

// WithMaxOpenConns bounds the database connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connLifetime = d
		}
	}
}

// WithLoadTimeout bounds a shared dataset load of the cached store.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
