package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/qdrant"
)

// QdrantStore is the Store implementation backed by a single shared
// Qdrant collection, filtered per-request by tenant/project/user.
type QdrantStore struct {
	client     qdrant.Client
	collection string
	vectorSize uint64
	logger     *logging.Logger
	metrics    *Metrics
}

// Config configures QdrantStore.
type Config struct {
	CollectionName string
	VectorSize     uint64
}

// NewQdrantStore wraps an already-connected qdrant.Client.
func NewQdrantStore(client qdrant.Client, cfg Config, logger *logging.Logger, metrics *Metrics) *QdrantStore {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &QdrantStore{
		client:     client,
		collection: cfg.CollectionName,
		vectorSize: cfg.VectorSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// scopeIndexFields are the payload keys every scope-filtered Search, List,
// and DeleteScope condition on. Qdrant needs a keyword index on each before
// it can use them as filter conditions instead of a full scan.
var scopeIndexFields = []string{"tenant_id", "project_id", "user_id", "memory_type", "session_id"}

func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: checking collection: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, s.collection, s.vectorSize); err != nil {
			return fmt.Errorf("vectorstore: creating collection: %w", err)
		}
	}
	for _, field := range scopeIndexFields {
		if err := s.client.CreateFieldIndex(ctx, s.collection, field); err != nil {
			return fmt.Errorf("vectorstore: indexing %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, f *Fragment, vector []float32) error {
	start := time.Now()
	point := &qdrant.Point{
		ID:     f.ID,
		Vector: vector,
		Payload: map[string]interface{}{
			"tenant_id":   f.Scope.TenantID,
			"project_id":  f.Scope.ProjectID,
			"user_id":     f.Scope.UserID,
			"memory_type": f.MemoryType,
			"session_id":  f.SessionID,
			"content":     f.Content,
			"created_at":  f.CreatedAt,
		},
	}
	err := s.client.Upsert(ctx, s.collection, []*qdrant.Point{point})
	s.metrics.RecordOp("upsert", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, scope Scope, vector []float32, limit int, memoryType, sessionID string) ([]SearchHit, error) {
	start := time.Now()
	filter := buildScopeFilter(scope, memoryType, sessionID)
	results, err := s.client.Search(ctx, s.collection, vector, uint64(limit), filter)
	s.metrics.RecordOp("search", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{ID: r.ID, Score: r.Score})
	}
	return hits, nil
}

func (s *QdrantStore) List(ctx context.Context, scope Scope, memoryType string, limit int) ([]string, error) {
	start := time.Now()
	filter := buildScopeFilter(scope, memoryType, "")
	ids, err := s.client.Scroll(ctx, s.collection, filter, uint64(limit))
	s.metrics.RecordOp("list", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: list: %w", err)
	}
	return ids, nil
}

func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.client.Delete(ctx, s.collection, []string{id})
	s.metrics.RecordOp("delete", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteScope(ctx context.Context, tenantID, projectID string) error {
	start := time.Now()
	filter := scopeDeletionFilter(tenantID, projectID)
	err := s.client.DeleteByFilter(ctx, s.collection, filter)
	s.metrics.RecordOp("delete_scope", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("vectorstore: delete scope: %w", err)
	}
	return nil
}

func (s *QdrantStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
