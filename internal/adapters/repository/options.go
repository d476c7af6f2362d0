package repository

import "github.com/okian/stationqc/internal/domain/model"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSizeHint presizes the store for about n assessments.
func WithSizeHint(n int) Option {
	return func(s *TreapStore) {
		if n > 0 {
			s.byKey = make(map[string]model.Assessment, n)
		}
	}
}
