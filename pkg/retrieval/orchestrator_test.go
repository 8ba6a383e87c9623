package retrieval_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/embedder/hash"
	"github.com/engramlabs/engram-go/pkg/metaindex"
	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/retrieval"
	"github.com/engramlabs/engram-go/pkg/vector"
)

// stubCatalog is an in-memory record set for pipeline tests. Like the store
// facade it hands out copies, never its own pointers.
type stubCatalog struct {
	records map[string]*record.MemoryRecord
}

func (c *stubCatalog) Get(id string) (*record.MemoryRecord, bool) {
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (c *stubCatalog) MostRecent(n int) []*record.MemoryRecord {
	out := make([]*record.MemoryRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type failingPlanner struct{}

func (failingPlanner) Plan(context.Context, string, record.SessionContext) (*record.QueryPlan, error) {
	return nil, errors.New("planner unavailable")
}

// seedPipeline builds a three-record corpus with embeddings and indices.
func seedPipeline(t *testing.T) (*stubCatalog, *metaindex.Index, vector.Index, *hash.Embedder) {
	t.Helper()
	now := time.Now()

	records := []*record.MemoryRecord{
		{
			ID: "a", Subjects: []string{"alice"}, Predicate: "likes", Object: "coffee",
			DisplayText: "Alice likes coffee", Type: record.TypePreference,
			Keywords: []string{"coffee", "drinks"}, CreatedAt: now.Add(-time.Hour),
			Confidence: record.ConfidenceHigh, Importance: record.ImportanceNormal,
		},
		{
			ID: "b", Subjects: []string{"bob"}, Predicate: "moved to", Object: "Berlin",
			DisplayText: "Bob moved to Berlin", Type: record.TypePersonalFact,
			Keywords: []string{"berlin", "moving"}, CreatedAt: now.Add(-48 * time.Hour),
			Confidence: record.ConfidenceMedium, Importance: record.ImportanceNormal,
		},
		{
			ID: "c", Subjects: []string{"user"}, Predicate: "visited", Object: "Tokyo",
			DisplayText: "User visited Tokyo last spring", Type: record.TypeEvent,
			Keywords: []string{"tokyo", "travel"}, CreatedAt: now.Add(-24 * time.Hour),
			Confidence: record.ConfidenceMedium, Importance: record.ImportanceNormal,
		},
	}

	emb := hash.New(64)
	meta := metaindex.New()
	vectors := vector.NewLinear(64)
	catalog := &stubCatalog{records: make(map[string]*record.MemoryRecord)}

	ctx := context.Background()
	for _, rec := range records {
		vec, err := emb.Embed(ctx, rec.DisplayText)
		require.NoError(t, err)
		rec.Embedding = vec
		require.NoError(t, vectors.Insert(ctx, rec.ID, vec))
		meta.Add(rec)
		catalog.records[rec.ID] = rec
	}
	return catalog, meta, vectors, emb
}

func TestRetrieveRanksBestMatchFirst(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, nil)

	results, err := o.Retrieve(context.Background(), "alice likes coffee", record.SessionContext{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, len(results), 5)
}

func TestRetrieveLeavesCatalogRecordsUntouched(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, nil)

	results, err := o.Retrieve(context.Background(), "alice likes coffee", record.SessionContext{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Greater(t, results[0].Score, 0.0)

	// Scores land on the returned copies only; the catalog's own records
	// stay pristine for concurrent readers.
	for id, rec := range catalog.records {
		assert.Zero(t, rec.Score, "record %s", id)
	}
	assert.NotSame(t, catalog.records[results[0].ID], results[0])
}

func TestRetrieveEmptyStore(t *testing.T) {
	catalog := &stubCatalog{records: map[string]*record.MemoryRecord{}}
	emb := hash.New(64)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, metaindex.New(), vector.NewLinear(64), emb, nil)

	results, err := o.Retrieve(context.Background(), "anything", record.SessionContext{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievePlannerFailureDegrades(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, failingPlanner{})

	results, err := o.Retrieve(context.Background(), "alice likes coffee", record.SessionContext{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestRetrieveHonorsSessionPlan(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, nil)

	sctx := record.SessionContext{Plan: &record.QueryPlan{
		SemanticQuery: "tokyo trip",
		TargetTypes:   []record.MemoryType{record.TypeEvent},
	}}
	results, err := o.Retrieve(context.Background(), "where did I go", sctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
}

func TestRetrievePlanLimitOverride(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, nil)

	sctx := record.SessionContext{Plan: &record.QueryPlan{SemanticQuery: "coffee", Limit: 1}}
	results, err := o.Retrieve(context.Background(), "coffee", sctx, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieveWidensOnNoMatch(t *testing.T) {
	catalog, meta, vectors, emb := seedPipeline(t)
	o := retrieval.NewOrchestrator(retrieval.Config{}, catalog, meta, vectors, emb, nil)

	// Nothing matches lexically or semantically; the pipeline still returns
	// material instead of an empty result.
	results, err := o.Retrieve(context.Background(), "zzz qqq", record.SessionContext{}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
