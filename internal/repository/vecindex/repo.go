// Package vecindex stores chunk vectors in the Redis FT index and runs
// similarity queries scoped by owner and document set.
package vecindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds index parameters.
type Config struct {
	IndexName       string
	KeyPrefix       string
	VectorDim       int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo implements the vector index client.
type Repo struct {
	store store
	cfg   Config
}

// New creates a vector index repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("%w: check index: %w", domain.ErrVectorIndex, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{r.chunkPrefix()},
		Fields: []db.IndexField{
			{Name: "user_id", Type: db.IndexFieldTag},
			{Name: "document_id", Type: db.IndexFieldTag},
			{Name: "chunk_index", Type: db.IndexFieldNumeric},
			{Name: "text", Type: db.IndexFieldText},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         r.cfg.VectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

// UpsertChunks writes one hash per chunk. Metadata carries everything
// needed to reconstruct a citation without a second round-trip.
func (r *Repo) UpsertChunks(ctx context.Context, userID string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrVectorIndex, len(chunks), len(vectors))
	}

	items := make([]db.HashSetItem, len(chunks))
	for i, ch := range chunks {
		items[i] = db.HashSetItem{
			Key: r.chunkKey(ch.DocumentID, ch.Index),
			Fields: map[string]string{
				"user_id":     userID,
				"document_id": ch.DocumentID,
				"chunk_index": strconv.Itoa(ch.Index),
				"text":        ch.Text,
				"start_byte":  strconv.Itoa(ch.StartByte),
				"end_byte":    strconv.Itoa(ch.EndByte),
				"vector":      encodeVector(vectors[i]),
			},
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: upsert chunks: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

// DeleteDocument removes every indexed chunk of one document.
func (r *Repo) DeleteDocument(ctx context.Context, documentID string) error {
	keys, err := r.store.Scan(ctx, r.chunkPrefix()+documentID+":*")
	if err != nil {
		return fmt.Errorf("%w: scan chunks: %w", domain.ErrVectorIndex, err)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

// Query returns up to topK chunks above minScore, scoped to the owner and
// optionally to a document id set. Results are ordered by descending score;
// ties are broken by original chunk order so citation ordering is
// deterministic across repeated identical queries.
func (r *Repo) Query(
	ctx context.Context, vector []float32, userID string, documentIDs []string,
	topK int, minScore float64,
) ([]domain.ScoredChunk, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		Vector:       vector,
		K:            topK,
		UserID:       userID,
		DocumentIDs:  documentIDs,
		ReturnFields: []string{"user_id", "document_id", "chunk_index", "text", "start_byte", "end_byte"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn query: %w", domain.ErrVectorIndex, err)
	}

	chunks := make([]domain.ScoredChunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Score < minScore {
			continue
		}
		chunks = append(chunks, entryToChunk(e))
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Index < chunks[j].Index
	})

	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func entryToChunk(e db.SearchEntry) domain.ScoredChunk {
	idx, _ := strconv.Atoi(e.Fields["chunk_index"])
	start, _ := strconv.Atoi(e.Fields["start_byte"])
	end, _ := strconv.Atoi(e.Fields["end_byte"])
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			DocumentID: e.Fields["document_id"],
			Index:      idx,
			Text:       e.Fields["text"],
			StartByte:  start,
			EndByte:    end,
		},
		UserID: e.Fields["user_id"],
		Score:  e.Score,
	}
}

func (r *Repo) chunkPrefix() string {
	return r.cfg.KeyPrefix + "chunk:"
}

func (r *Repo) chunkKey(documentID string, index int) string {
	return r.chunkPrefix() + documentID + ":" + strconv.Itoa(index)
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
