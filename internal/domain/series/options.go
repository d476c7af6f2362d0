package series

// Option applies a configuration option to a Cache.
type Option func(*settings)

type settings struct {
	name string
}

// WithName labels the cache's memo table in metrics. Defaults to "series".
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}
