// Package repository keeps the assessments produced by a run and serves them
// ranked by severity.
package repository

import (
	"context"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
)

// Entry is one ranked assessment. Rank starts at 1 for the most severe.
type Entry struct {
	Rank       int
	Assessment model.Assessment
}

// Store provides read/write access to assessed observations.
type Store interface {
	// Put stores a, replacing any earlier assessment of the same observation.
	Put(ctx context.Context, a model.Assessment) error

	// Get returns the assessment of the observation with key.
	// Returns ErrNotFound if it was never stored.
	Get(ctx context.Context, key string) (model.Assessment, error)

	// Rank returns the severity rank of the observation with key.
	Rank(ctx context.Context, key string) (Entry, error)

	// TopN returns the n most severe assessments: flag desc, score desc,
	// then key asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// All returns every assessment ordered by station then time.
	All(ctx context.Context) []model.Assessment

	// Count returns the number of stored assessments.
	Count(ctx context.Context) int

	// CountByFlag returns how many assessments carry each combined flag.
	CountByFlag(ctx context.Context) map[flag.Flag]int
}
