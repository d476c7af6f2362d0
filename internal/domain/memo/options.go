// Package memo provides the concurrent memoization table behind the caches.
package memo

// Option applies a configuration option to a Table.
type Option func(*settings)

type settings struct {
	name string
}

// WithName labels the table in metrics. Defaults to "memo".
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}
