package qdrant

import (
	"context"
)

// Client provides a unified interface to the Qdrant vector database,
// independent of tenant/project scoping concerns (those live in vectorstore).
type Client interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	// CreateFieldIndex creates a keyword payload index on field, required
	// before that field can be used in a filter condition efficiently.
	CreateFieldIndex(ctx context.Context, collection, field string) error

	// Point operations
	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)
	Get(ctx context.Context, collection string, ids []string) ([]*Point, error)
	Delete(ctx context.Context, collection string, ids []string) error

	// Scroll enumerates point ids matching filter, with no particular
	// ordering. Used for id-list enumeration ahead of metadata hydration.
	Scroll(ctx context.Context, collection string, filter *Filter, limit uint64) ([]string, error)

	// DeleteByFilter removes every point matching filter in one call.
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	// Health
	Health(ctx context.Context) error

	// Close closes the client connection
	Close() error
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint represents a search result with score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter represents a filter for search operations.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// Condition represents a filter condition.
type Condition struct {
	Field string
	Match interface{}
	Range *RangeCondition
}

// RangeCondition represents a range filter.
type RangeCondition struct {
	Gte *float64
	Lte *float64
	Gt  *float64
	Lt  *float64
}
