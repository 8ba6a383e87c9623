package retrieval

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/engramlabs/engram-go/pkg/embedder"
	"github.com/engramlabs/engram-go/pkg/metaindex"
	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/vector"
)

// Catalog gives the orchestrator read access to the record set. The store
// facade implements it. Implementations must hand out private copies: the
// pipeline scores the records it receives and runs outside any store lock,
// so a shared pointer would race with concurrent access-stat updates.
type Catalog interface {
	// Get returns a copy of the record with the given id.
	Get(id string) (*record.MemoryRecord, bool)

	// MostRecent returns copies of up to n records, newest first.
	MostRecent(n int) []*record.MemoryRecord
}

// ContextWeights mix the stage-5 contextual score.
type ContextWeights struct {
	Vector   float64
	Semantic float64
	Context  float64
	Recency  float64
}

// DefaultContextWeights returns the standard contextual scoring mix.
func DefaultContextWeights() ContextWeights {
	return ContextWeights{Vector: 0.4, Semantic: 0.3, Context: 0.2, Recency: 0.1}
}

// Config tunes the retrieval pipeline. Zero values fall back to defaults.
type Config struct {
	// MetadataFilterLimit caps the stage-2 candidate set. Default 200.
	MetadataFilterLimit int

	// VectorThreshold is the minimum cosine similarity for a stage-3 hit.
	// Default 0.45.
	VectorThreshold float64

	// SemanticThreshold is the lower stage-4 cutoff. Default 0.1.
	SemanticThreshold float64

	// ContextWeights mix the stage-5 contextual score.
	ContextWeights ContextWeights

	// RerankWeights mix the stage-6 final score. Normalized to sum to 1.
	RerankWeights RerankWeights
}

func (c Config) withDefaults() Config {
	if c.MetadataFilterLimit <= 0 {
		c.MetadataFilterLimit = 200
	}
	if c.VectorThreshold <= 0 {
		c.VectorThreshold = 0.45
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = 0.1
	}
	zero := ContextWeights{}
	if c.ContextWeights == zero {
		c.ContextWeights = DefaultContextWeights()
	}
	c.RerankWeights = c.RerankWeights.normalized()
	return c
}

// Orchestrator runs the staged retrieval pipeline over the shared indices.
// It holds read-only references; the caller guards cross-index consistency.
type Orchestrator struct {
	cfg      Config
	catalog  Catalog
	meta     *metaindex.Index
	vectors  vector.Index
	embedder embedder.Provider
	planner  Planner // optional
	now      func() time.Time
}

// NewOrchestrator creates a retrieval orchestrator. planner may be nil, in
// which case stage 1 is skipped and the raw query drives the pipeline.
func NewOrchestrator(cfg Config, catalog Catalog, meta *metaindex.Index, vectors vector.Index, emb embedder.Provider, planner Planner) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		catalog:  catalog,
		meta:     meta,
		vectors:  vectors,
		embedder: emb,
		planner:  planner,
		now:      time.Now,
	}
}

// scored carries a record through the pipeline with its per-stage scores.
type scored struct {
	rec      *record.MemoryRecord
	vector   float64
	semantic float64
	final    float64
}

// Retrieve runs the full pipeline and returns up to limit records, best
// first, with their transient Score set to the final rerank score.
//
// Stage failures degrade: a failed planner means no filters, a failed
// embedding means token-overlap search, an over-strict filter falls back to
// recent records. Only a completely empty store returns an empty slice.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, sctx record.SessionContext, limit int) ([]*record.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	now := sctx.At(o.now())

	// Stage 1: query planning.
	plan := o.plan(ctx, query, sctx)
	if plan != nil && plan.Limit > 0 {
		limit = plan.Limit
	}
	semanticQuery := query
	if plan != nil && plan.SemanticQuery != "" {
		semanticQuery = plan.SemanticQuery
	}
	queryTokens := record.Tokenize(semanticQuery)
	if len(queryTokens) == 0 {
		queryTokens = record.Tokenize(query)
	}

	// Stage 2: metadata coarse filter.
	candidates := o.coarseFilter(plan)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Stage 3: vector search restricted to the candidate set.
	results := o.vectorSearch(ctx, semanticQuery, queryTokens, candidates)

	// Stage 4: semantic rerank with the lower threshold.
	results = o.semanticRerank(queryTokens, results)

	// Stage 5: contextual scoring, keep top limit.
	results = o.contextualScore(results, sctx, plan, now, limit)

	// Stage 5b: fallback when the pipeline under-delivers.
	results = o.fallback(results, queryTokens, limit)

	// Stage 6: intent-aware final rerank.
	return o.finalRerank(query, queryTokens, results, now, limit), nil
}

// plan runs the optional planner. Any failure falls back to a nil plan.
func (o *Orchestrator) plan(ctx context.Context, query string, sctx record.SessionContext) *record.QueryPlan {
	if sctx.Plan != nil {
		return sctx.Plan
	}
	if o.planner == nil {
		return nil
	}
	plan, err := o.planner.Plan(ctx, query, sctx)
	if err != nil {
		log.Printf("retrieval: planner failed, using raw query: %v", err)
		return nil
	}
	return plan
}

// coarseFilter AND-combines the planner filters over the metadata index,
// sorts by recency, and caps the set. An empty filter result falls back to
// the most-recently-accessed records.
func (o *Orchestrator) coarseFilter(plan *record.QueryPlan) []*record.MemoryRecord {
	var f metaindex.Filter
	if plan != nil {
		f.Types = plan.TargetTypes
		f.Subjects = plan.SubjectFilters
		f.Keywords = plan.RequiredKeywords
	}

	ids := o.meta.Query(f)
	if len(ids) == 0 && !f.Empty() {
		log.Printf("retrieval: metadata filter matched nothing, widening to recently accessed")
		ids = o.meta.TopByAccessed(o.cfg.MetadataFilterLimit)
	}

	records := make([]*record.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := o.catalog.Get(id); ok {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > o.cfg.MetadataFilterLimit {
		records = records[:o.cfg.MetadataFilterLimit]
	}
	return records
}

// vectorSearch embeds the query and keeps candidates above the similarity
// threshold. Embedding or index failure degrades to token-overlap scoring
// over the same candidate set.
func (o *Orchestrator) vectorSearch(ctx context.Context, query string, queryTokens []string, candidates []*record.MemoryRecord) []scored {
	inSet := make(map[string]*record.MemoryRecord, len(candidates))
	for _, rec := range candidates {
		inSet[rec.ID] = rec
	}

	vec, err := o.embedder.Embed(ctx, query)
	if err == nil {
		k := o.vectors.Len()
		if k > 0 {
			matches, serr := o.vectors.Search(ctx, vec, k)
			if serr == nil {
				var out []scored
				for _, m := range matches {
					rec, ok := inSet[m.ID]
					if !ok || m.Similarity < o.cfg.VectorThreshold {
						continue
					}
					out = append(out, scored{rec: rec, vector: m.Similarity})
				}
				if len(out) > 0 {
					return out
				}
				log.Printf("retrieval: no vector match above %.2f, falling back to text overlap", o.cfg.VectorThreshold)
			} else {
				log.Printf("retrieval: vector search failed, falling back to text overlap: %v", serr)
			}
		}
	} else {
		log.Printf("retrieval: query embedding failed, falling back to text overlap: %v", err)
	}

	// Token-overlap text search over the candidate set.
	out := make([]scored, 0, len(candidates))
	for _, rec := range candidates {
		out = append(out, scored{rec: rec, vector: tokenOverlap(queryTokens, rec)})
	}
	return out
}

// semanticRerank scores candidates lexically and drops those below the
// lower threshold. If everything drops, the prior set is kept so later
// stages still have material.
func (o *Orchestrator) semanticRerank(queryTokens []string, in []scored) []scored {
	kept := make([]scored, 0, len(in))
	for i := range in {
		in[i].semantic = SemanticScore(queryTokens, in[i].rec)
		if in[i].semantic >= o.cfg.SemanticThreshold {
			kept = append(kept, in[i])
		}
	}
	if len(kept) == 0 {
		return in
	}
	return kept
}

// contextualScore mixes vector, semantic, session-context overlap, and
// recency into the stage-5 score and keeps the top limit.
func (o *Orchestrator) contextualScore(in []scored, sctx record.SessionContext, plan *record.QueryPlan, now time.Time, limit int) []scored {
	w := o.cfg.ContextWeights
	pref := record.RecencyAny
	if plan != nil {
		pref = plan.Recency
	}

	ctxTokens := record.NormalizeTokens(append(append([]string{}, sctx.Keywords...), sctx.Participants...))
	for i := range in {
		overlap := contextOverlap(ctxTokens, in[i].rec)
		recency := recencyFactor(in[i].rec, now, pref)
		in[i].final = w.Vector*in[i].vector + w.Semantic*in[i].semantic + w.Context*overlap + w.Recency*recency
	}

	sort.SliceStable(in, func(i, j int) bool { return in[i].final > in[j].final })
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}

// fallback widens the result set when stage 5 under-delivers: first keyword
// match over the whole store, then most-recent records, appended until the
// floor is met.
func (o *Orchestrator) fallback(in []scored, queryTokens []string, limit int) []scored {
	floor := 3
	if limit < floor {
		floor = limit
	}
	if len(in) >= floor {
		return in
	}
	log.Printf("retrieval: only %d results after contextual scoring, widening", len(in))

	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		seen[s.rec.ID] = struct{}{}
	}

	appendRec := func(rec *record.MemoryRecord, score float64) {
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		in = append(in, scored{rec: rec, semantic: score, final: score})
	}

	// Keyword widening over the entire store.
	if len(queryTokens) > 0 {
		ids := o.meta.Query(metaindex.Filter{Keywords: queryTokens})
		for _, id := range ids {
			if len(in) >= limit {
				return in
			}
			if rec, ok := o.catalog.Get(id); ok {
				appendRec(rec, tokenOverlap(queryTokens, rec))
			}
		}
	}

	// Most-recent records as the last resort.
	for _, rec := range o.catalog.MostRecent(limit) {
		if len(in) >= limit {
			break
		}
		appendRec(rec, 0)
	}
	return in
}

// finalRerank classifies the query intent and recomputes the final score.
func (o *Orchestrator) finalRerank(query string, queryTokens []string, in []scored, now time.Time, limit int) []*record.MemoryRecord {
	intent := ClassifyIntent(query)
	for i := range in {
		if in[i].semantic == 0 {
			in[i].semantic = SemanticScore(queryTokens, in[i].rec)
		}
		in[i].final = rerankScore(in[i].rec, in[i].semantic, intent, o.cfg.RerankWeights, now)
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].final > in[j].final })
	if len(in) > limit {
		in = in[:limit]
	}

	out := make([]*record.MemoryRecord, len(in))
	for i, s := range in {
		s.rec.Score = s.final
		out[i] = s.rec
	}
	return out
}

// tokenOverlap is the embedding-free stand-in for vector similarity.
func tokenOverlap(queryTokens []string, rec *record.MemoryRecord) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	set := toSet(record.Tokenize(rec.DisplayText))
	hits := 0
	for _, q := range queryTokens {
		if _, ok := set[q]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// contextOverlap measures how much of the session context a record touches.
func contextOverlap(ctxTokens []string, rec *record.MemoryRecord) float64 {
	if len(ctxTokens) == 0 {
		return 0
	}
	set := toSet(record.Tokenize(rec.DisplayText))
	for _, k := range rec.Keywords {
		set[k] = struct{}{}
	}
	for _, s := range rec.Subjects {
		for _, t := range record.Tokenize(s) {
			set[t] = struct{}{}
		}
	}
	hits := 0
	for _, t := range ctxTokens {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(ctxTokens))
}

// recencyFactor maps record age into [0,1] honoring the recency preference:
// "recent" rewards new records, "historical" rewards old ones, "any" decays
// gently.
func recencyFactor(rec *record.MemoryRecord, now time.Time, pref record.RecencyPreference) float64 {
	age := now.Sub(rec.CreatedAt)
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-float64(age) / float64(recencyHalfLife))
	switch pref {
	case record.RecencyHistorical:
		return 1 - decay
	case record.RecencyRecent:
		return decay
	default:
		return 0.5 + 0.5*decay
	}
}
