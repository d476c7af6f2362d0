package spatial

// Option applies a configuration option to a Cache.
type Option func(*settings)

type settings struct {
	metric Metric
	name   string
}

// WithMetric selects the distance metric. Defaults to Geodetic.
func WithMetric(m Metric) Option {
	return func(s *settings) {
		s.metric = m
	}
}

// WithName labels the cache's memo table in metrics. Defaults to "spatial".
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}
