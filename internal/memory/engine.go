// Package memory implements the dual-store memory engine: the
// authoritative relational metadata store plus the vector index, kept
// in sync under write/update/delete through compensation rather than
// a distributed transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/embeddings"
	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/fyrsmithlabs/engrama/internal/vectorstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scope is the (tenant, project, user) triple every operation is bound
// to. No operation may cross it.
type Scope struct {
	TenantID  string
	ProjectID string
	UserID    string
}

func (s Scope) vectorScope() vectorstore.Scope {
	return vectorstore.Scope{TenantID: s.TenantID, ProjectID: s.ProjectID, UserID: s.UserID}
}

// matches reports whether a stored fragment's scope is exactly s.
func (s Scope) matches(f *metadatastore.MemoryFragment) bool {
	return f.TenantID == s.TenantID && f.ProjectID == s.ProjectID && f.UserID == s.UserID
}

// Engine composes the metadata store, vector store, and embedding
// encoder into the operations described by the memory component.
type Engine struct {
	meta    metadatastore.Store
	vector  vectorstore.Store
	encoder embeddings.Encoder
	logger  *logging.Logger
}

// New wires an Engine from its three collaborators.
func New(meta metadatastore.Store, vector vectorstore.Store, encoder embeddings.Encoder, logger *logging.Logger) *Engine {
	return &Engine{meta: meta, vector: vector, encoder: encoder, logger: logger}
}

// AddInput carries the caller-supplied fields for Add.
type AddInput struct {
	Content    string
	MemoryType metadatastore.MemoryType
	Role       *string
	SessionID  *string
	Tags       []string
	Importance float64
	Metadata   []byte
}

// Add allocates a fresh fragment, writes it to the metadata store
// first, then encodes and upserts the vector. A vector write failure
// compensates by deleting the metadata row and surfaces
// KindVectorWriteFailed.
func (e *Engine) Add(ctx context.Context, scope Scope, in AddInput) (*metadatastore.MemoryFragment, error) {
	now := time.Now().UTC()
	f := &metadatastore.MemoryFragment{
		ID:         uuid.NewString(),
		TenantID:   scope.TenantID,
		ProjectID:  scope.ProjectID,
		UserID:     scope.UserID,
		MemoryType: in.MemoryType,
		Content:    in.Content,
		Role:       in.Role,
		SessionID:  in.SessionID,
		Tags:       in.Tags,
		Importance: in.Importance,
		Metadata:   in.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.meta.AddFragment(ctx, f); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "write memory fragment", err)
	}

	vector, err := e.encoder.Encode(ctx, in.Content)
	if err != nil {
		e.compensate(ctx, f.ID)
		return nil, apperr.Wrap(apperr.KindVectorWriteFailed, "encode memory fragment", err)
	}

	sessionID := ""
	if f.SessionID != nil {
		sessionID = *f.SessionID
	}
	vf := &vectorstore.Fragment{
		ID:         f.ID,
		Scope:      scope.vectorScope(),
		MemoryType: string(f.MemoryType),
		SessionID:  sessionID,
		Content:    f.Content,
		CreatedAt:  f.CreatedAt.Format(time.RFC3339),
	}
	if err := e.vector.Upsert(ctx, vf, vector); err != nil {
		e.compensate(ctx, f.ID)
		return nil, apperr.Wrap(apperr.KindVectorWriteFailed, "upsert memory vector", err)
	}

	return f, nil
}

// compensate deletes a metadata row after a failed secondary write.
// Compensation failure is logged but not surfaced: the caller already
// sees vector_write_failed.
func (e *Engine) compensate(ctx context.Context, id string) {
	if _, err := e.meta.DeleteFragment(ctx, id); err != nil && e.logger != nil {
		e.logger.Error(ctx, "compensation delete failed after vector write failure",
			zap.String("fragment_id", id), zap.Error(err))
	}
}

// SearchResult pairs a hydrated fragment with its vector similarity score.
type SearchResult struct {
	Fragment *metadatastore.MemoryFragment
	Score    float32
}

// Search ranks by vector similarity, hydrates from the metadata store,
// and silently drops orphan points (ids with no surviving metadata
// row). Hit-count increments for survivors never fail the search.
func (e *Engine) Search(ctx context.Context, scope Scope, query string, limit int, memoryType, sessionID string) ([]SearchResult, error) {
	vector, err := e.encoder.Encode(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode search query", err)
	}

	hits, err := e.vector.Search(ctx, scope.vectorScope(), vector, limit, memoryType, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vector search", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scoreByID := make(map[string]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = h.Score
	}

	fragments, err := e.meta.GetFragments(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hydrate search results", err)
	}

	results := make([]SearchResult, 0, len(fragments))
	survivors := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if !scope.matches(f) {
			continue // orphan or cross-scope row; drop silently
		}
		results = append(results, SearchResult{Fragment: f, Score: scoreByID[f.ID]})
		survivors = append(survivors, f.ID)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if err := e.meta.BatchIncrementHitCount(ctx, survivors); err != nil && e.logger != nil {
		e.logger.Warn(ctx, "hit count increment failed after search", zap.Error(err))
	}

	return results, nil
}

// allowedUpdateFields mirrors the metadata store's column whitelist at
// the engine boundary so an invalid field is rejected before any I/O.
var allowedUpdateFields = map[string]bool{
	"content":    true,
	"tags":       true,
	"importance": true,
	"metadata":   true,
}

// Update loads the fragment, rejects scope mismatches as not_found,
// applies the allowed field subset, and re-encodes the vector only
// when content changed.
func (e *Engine) Update(ctx context.Context, scope Scope, id string, fields map[string]interface{}) (*metadatastore.MemoryFragment, error) {
	for k := range fields {
		if !allowedUpdateFields[k] {
			return nil, apperr.New(apperr.KindBadRequest, fmt.Sprintf("field %q is not updatable", k))
		}
	}

	existing, err := e.meta.GetFragment(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load fragment for update", err)
	}
	if existing == nil || !scope.matches(existing) {
		return nil, apperr.New(apperr.KindNotFound, "memory fragment not found")
	}

	if _, err := e.meta.UpdateFragment(ctx, id, fields); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "update fragment", err)
	}

	newContent, contentChanged := fields["content"].(string)
	if contentChanged {
		vector, err := e.encoder.Encode(ctx, newContent)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindVectorWriteFailed, "re-encode updated fragment", err)
		}
		sessionID := ""
		if existing.SessionID != nil {
			sessionID = *existing.SessionID
		}
		vf := &vectorstore.Fragment{
			ID:         id,
			Scope:      scope.vectorScope(),
			MemoryType: string(existing.MemoryType),
			SessionID:  sessionID,
			Content:    newContent,
			CreatedAt:  existing.CreatedAt.Format(time.RFC3339),
		}
		if err := e.vector.Upsert(ctx, vf, vector); err != nil {
			return nil, apperr.Wrap(apperr.KindVectorWriteFailed, "upsert updated vector", err)
		}
	}

	return e.meta.GetFragment(ctx, id)
}

// Delete scope-checks as in Update, then deletes the metadata row
// first and the vector point second. Returns true iff a metadata row
// was deleted.
func (e *Engine) Delete(ctx context.Context, scope Scope, id string) (bool, error) {
	existing, err := e.meta.GetFragment(ctx, id)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "load fragment for delete", err)
	}
	if existing == nil || !scope.matches(existing) {
		return false, nil
	}

	deleted, err := e.meta.DeleteFragment(ctx, id)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "delete fragment", err)
	}
	if !deleted {
		return false, nil
	}

	if err := e.vector.Delete(ctx, id); err != nil && e.logger != nil {
		e.logger.Warn(ctx, "vector point delete failed after metadata delete",
			zap.String("fragment_id", id), zap.Error(err))
	}
	return true, nil
}

// List scrolls the vector index for id enumeration, hydrates from the
// metadata store, and sorts by created_at descending.
func (e *Engine) List(ctx context.Context, scope Scope, memoryType string, limit int) ([]*metadatastore.MemoryFragment, error) {
	ids, err := e.vector.List(ctx, scope.vectorScope(), memoryType, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list memory ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fragments, err := e.meta.GetFragments(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hydrate listed fragments", err)
	}

	filtered := fragments[:0]
	for _, f := range fragments {
		if scope.matches(f) {
			filtered = append(filtered, f)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return filtered, nil
}

// History is List filtered to a single session and sorted by
// created_at ascending — conversational replay order rather than
// most-recent-first.
func (e *Engine) History(ctx context.Context, scope Scope, sessionID string, limit int) ([]*metadatastore.MemoryFragment, error) {
	ids, err := e.vector.List(ctx, scope.vectorScope(), "", limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list history ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fragments, err := e.meta.GetFragments(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hydrate history fragments", err)
	}

	filtered := fragments[:0]
	for _, f := range fragments {
		if !scope.matches(f) {
			continue
		}
		if f.SessionID == nil || *f.SessionID != sessionID {
			continue
		}
		filtered = append(filtered, f)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})
	return filtered, nil
}

// Stats is computed entirely from the metadata store: the vector index
// is an index, not a ground-truth count.
func (e *Engine) Stats(ctx context.Context, scope Scope) (*metadatastore.Stats, error) {
	stats, err := e.meta.Stats(ctx, scope.TenantID, scope.ProjectID, scope.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "compute stats", err)
	}
	return stats, nil
}
