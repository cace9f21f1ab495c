package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"mnemod/internal/logging"
)

// Hit is one semantic search result.
type Hit struct {
	MemoryID   int64
	Similarity float64 // 0..1
}

// Index stores memory embeddings in an embedded chromem database with one
// collection per profile, so semantic search never crosses profiles.
type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewIndex creates an in-memory index. Embeddings are rebuilt from the
// store on startup, so persistence is not required here.
func NewIndex() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistentIndex creates an index backed by a directory on disk.
func NewPersistentIndex(path string) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	return &Index{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func collectionName(profile string) string {
	return "profile_" + profile
}

// collection returns (or creates) the profile's collection with
// double-checked locking.
func (ix *Index) collection(profile string) (*chromem.Collection, error) {
	name := collectionName(profile)

	ix.mu.RLock()
	col, ok := ix.collections[name]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[name]; ok {
		return col, nil
	}

	// Embeddings are supplied explicitly, so no embedding func is wired.
	col, err := ix.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	ix.collections[name] = col
	return col, nil
}

// Add stores one memory embedding in the profile's collection.
func (ix *Index) Add(ctx context.Context, profile string, memoryID int64, content string, embedding []float32) error {
	col, err := ix.collection(profile)
	if err != nil {
		return err
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        strconv.FormatInt(memoryID, 10),
		Content:   content,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("failed to index memory %d: %w", memoryID, err)
	}
	return nil
}

// Delete removes a memory's embedding. Deleting an unindexed memory is
// a no-op.
func (ix *Index) Delete(ctx context.Context, profile string, memoryID int64) error {
	col, err := ix.collection(profile)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, strconv.FormatInt(memoryID, 10)); err != nil {
		logging.EmbeddingWarn("failed to delete memory %d from index: %v", memoryID, err)
	}
	return nil
}

// Query returns the profile's memories most similar to the query embedding.
// Similarity is mapped into [0,1].
func (ix *Index) Query(ctx context.Context, profile string, embedding []float32, limit int) ([]Hit, error) {
	col, err := ix.collection(profile)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		// Cosine similarity; negative values carry no signal for ranking.
		sim := float64(r.Similarity)
		if sim < 0 {
			sim = 0
		} else if sim > 1 {
			sim = 1
		}
		hits = append(hits, Hit{MemoryID: id, Similarity: sim})
	}
	return hits, nil
}

// Count returns how many embeddings the profile's collection holds.
func (ix *Index) Count(profile string) int {
	col, err := ix.collection(profile)
	if err != nil {
		return 0
	}
	return col.Count()
}
