package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/engramlabs/engram-go/pkg/embedder"
	embedderhash "github.com/engramlabs/engram-go/pkg/embedder/hash"
	embedderopenai "github.com/engramlabs/engram-go/pkg/embedder/openai"
	"github.com/engramlabs/engram-go/pkg/extraction"
	"github.com/engramlabs/engram-go/pkg/forgetting"
	"github.com/engramlabs/engram-go/pkg/fusion"
	"github.com/engramlabs/engram-go/pkg/llm"
	llmollama "github.com/engramlabs/engram-go/pkg/llm/ollama"
	llmopenai "github.com/engramlabs/engram-go/pkg/llm/openai"
	"github.com/engramlabs/engram-go/pkg/metaindex"
	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/recordstore"
	rsmysql "github.com/engramlabs/engram-go/pkg/recordstore/mysql"
	rspostgres "github.com/engramlabs/engram-go/pkg/recordstore/postgres"
	rssqlite "github.com/engramlabs/engram-go/pkg/recordstore/sqlite"
	"github.com/engramlabs/engram-go/pkg/retrieval"
	"github.com/engramlabs/engram-go/pkg/vector"
)

// Snapshot file names inside MemoryConfig.SnapshotDir.
const (
	vectorSnapshotFile = "vectors.snap"
	metaSnapshotFile   = "metaindex.json"
	recordSnapshotFile = "records.json"
)

// fusionNeighborK bounds how many vector neighbors are considered for
// fusion when integrating a new record.
const fusionNeighborK = 8

// Store is the memory store facade. It owns the vector index, the metadata
// index, the fingerprint map, and the record set, and keeps them consistent
// under one coarse write lock.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	store, err := core.New(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Shutdown(context.Background())
//
//	store.Build(ctx, "I met Alice for coffee yesterday", core.WithScope("sess-1"))
//	results, _ := store.Retrieve(ctx, "who did I meet?", core.WithLimit(5))
type Store struct {
	cfg *Config

	embedder  embedder.Provider
	llm       llm.Provider // nil when no LLM provider is configured
	extractor *extraction.Extractor
	planner   retrieval.Planner

	fusion  *fusion.Engine
	forget  *forgetting.Engine
	vectors vector.Index
	meta    *metaindex.Index
	persist recordstore.RecordStore // nil for the "none" provider

	mu           sync.RWMutex
	records      map[string]*record.MemoryRecord
	fingerprints map[string]string // semantic hash -> record id
	lastBuild    map[string]time.Time
	closed       bool

	node *snowflake.Node
	now  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// BuildResult summarizes one Build call.
type BuildResult struct {
	// IDs are the ids of the records that now represent the input, both
	// newly created and fusion representatives.
	IDs []string

	// Created is the number of new records indexed.
	Created int

	// Fused is the number of candidates absorbed into existing records.
	Fused int

	// Throttled reports that the per-scope minimum rebuild interval
	// suppressed the call entirely.
	Throttled bool
}

// MaintenanceStats summarizes one maintenance pass.
type MaintenanceStats struct {
	// Forgetting is the eviction decision breakdown.
	Forgetting forgetting.Stats

	// Evicted is the number of records actually removed.
	Evicted int

	// Pruned is the number of orphaned metadata entries compacted away.
	Pruned int
}

// Stats is a point-in-time view of the store size.
type Stats struct {
	Records       int `json:"records"`
	VectorEntries int `json:"vector_entries"`
	MetaEntries   int `json:"meta_entries"`
}

// New creates a memory store from the configuration.
//
// It wires the embedding provider (wrapped in a cache), the optional LLM
// provider for extraction and planning, the durable record store, and the
// in-memory indices, then loads existing records.
//
// Returns an error for invalid configuration or unreachable backends.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, NewStoreError("New", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Memory.applyDefaults()

	emb, err := newEmbedder(&cfg.Embedder)
	if err != nil {
		return nil, NewStoreError("New", err)
	}

	var provider llm.Provider
	if cfg.LLM.Provider != "" {
		provider, err = newLLM(&cfg.LLM)
		if err != nil {
			return nil, NewStoreError("New", err)
		}
	}

	return NewWithProviders(cfg, emb, provider)
}

// NewWithProviders creates a memory store with caller-supplied embedding
// and LLM providers, bypassing the config-driven provider construction.
// provider may be nil; extraction and planning are then unavailable. The
// record store and indices are still built from the configuration.
func NewWithProviders(cfg *Config, emb embedder.Provider, provider llm.Provider) (*Store, error) {
	if cfg == nil || emb == nil {
		return nil, NewStoreError("New", ErrInvalidConfig)
	}
	cfg.Memory.applyDefaults()

	cached, err := embedder.NewCached(emb, cfg.Memory.EmbeddingCacheSize)
	if err != nil {
		return nil, NewStoreError("New", err)
	}

	persist, err := newRecordStore(&cfg.RecordStore)
	if err != nil {
		return nil, NewStoreError("New", err)
	}

	vectors, err := vector.New(cfg.Memory.IndexBackend, cfg.Embedder.Dimensions)
	if err != nil {
		return nil, NewStoreError("New", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewStoreError("New", err)
	}

	s := &Store{
		cfg:          cfg,
		embedder:     cached,
		llm:          provider,
		fusion:       fusion.NewEngine(cfg.Memory.FusionThreshold),
		forget:       forgetting.NewEngine(cfg.Memory.DormantAfterDays, cfg.Memory.ForceEvictAfterDays),
		vectors:      vectors,
		meta:         metaindex.New(),
		persist:      persist,
		records:      make(map[string]*record.MemoryRecord),
		fingerprints: make(map[string]string),
		lastBuild:    make(map[string]time.Time),
		node:         node,
		now:          time.Now,
	}
	if provider != nil {
		s.extractor = extraction.NewExtractor(provider)
		if cfg.Memory.PlannerEnabled {
			s.planner = retrieval.NewLLMPlanner(provider)
		}
	}

	if err := s.load(context.Background()); err != nil {
		return nil, NewStoreError("New", err)
	}

	if cfg.Memory.MaintenanceInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.maintenanceLoop(ctx, cfg.Memory.MaintenanceInterval)
	}

	return s, nil
}

// load restores state from the record store, or from snapshot files when no
// record store is configured. Malformed entries are skipped and logged.
func (s *Store) load(ctx context.Context) error {
	var records []*record.MemoryRecord
	var err error

	switch {
	case s.persist != nil:
		records, err = s.persist.List(ctx)
		if err != nil {
			return err
		}
	case s.cfg.Memory.SnapshotDir != "":
		records, err = loadRecordSnapshot(filepath.Join(s.cfg.Memory.SnapshotDir, recordSnapshotFile))
		if err != nil {
			log.Printf("engram: record snapshot unusable, starting empty: %v", err)
			records = nil
		}
	}
	if len(records) == 0 {
		return nil
	}

	// A usable vector snapshot spares re-inserting every embedding.
	vectorsLoaded := false
	if s.cfg.Memory.SnapshotDir != "" {
		path := filepath.Join(s.cfg.Memory.SnapshotDir, vectorSnapshotFile)
		if err := s.vectors.Load(path); err == nil && s.vectors.Len() > 0 {
			vectorsLoaded = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		rec.NormalizeSubjects()
		s.records[rec.ID] = rec
		if rec.SemanticHash != "" {
			s.fingerprints[rec.SemanticHash] = rec.ID
		}
		s.meta.Add(rec)
		if !vectorsLoaded && len(rec.Embedding) > 0 {
			if err := s.vectors.Insert(ctx, rec.ID, rec.Embedding); err != nil {
				log.Printf("engram: skipping vector for record %s: %v", rec.ID, err)
			}
		}
	}
	log.Printf("engram: loaded %d records", len(records))
	return nil
}

// Build extracts memory candidates from text, fuses them against existing
// records, and indexes the survivors.
//
// A Build inside the per-scope minimum rebuild interval returns a throttled
// result without calling any provider. Extraction is retried once on
// failure. Candidates whose embedding fails are indexed metadata-only.
//
// Returns ErrNoProvider when no extraction provider is configured.
func (s *Store) Build(ctx context.Context, text string, opts ...Option) (*BuildResult, error) {
	o := applyOptions(opts)
	scope := s.resolveScope(o.sctx)
	now := o.sctx.At(s.now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, NewStoreError("Build", ErrClosed)
	}
	if s.extractor == nil {
		s.mu.Unlock()
		return nil, NewStoreError("Build", ErrNoProvider)
	}
	if last, ok := s.lastBuild[scope]; ok && now.Sub(last) < s.cfg.Memory.MinRebuildInterval {
		s.mu.Unlock()
		return &BuildResult{Throttled: true}, nil
	}
	s.lastBuild[scope] = now
	s.mu.Unlock()

	candidates, err := s.extractor.Extract(ctx, text)
	if err != nil {
		log.Printf("engram: extraction failed, retrying once: %v", err)
		candidates, err = s.extractor.Extract(ctx, text)
		if err != nil {
			// A failed build must not consume the scope's rebuild window.
			s.mu.Lock()
			if t, ok := s.lastBuild[scope]; ok && t.Equal(now) {
				delete(s.lastBuild, scope)
			}
			s.mu.Unlock()
			return nil, NewStoreError("Build", fmt.Errorf("%w: %v", ErrProvider, err))
		}
	}
	if len(candidates) == 0 {
		return &BuildResult{}, nil
	}

	session := uuid.NewString()
	newRecords := make([]*record.MemoryRecord, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		rec := &record.MemoryRecord{
			ID:             s.node.Generate().String(),
			OwnerScope:     scope,
			Subjects:       c.Subjects,
			Predicate:      c.Predicate,
			Object:         c.Object,
			DisplayText:    c.DisplayText,
			Type:           c.Type,
			Keywords:       c.Keywords,
			Confidence:     c.Confidence.Clamp(),
			Importance:     c.Importance.Clamp(),
			RelevanceScore: 0.5,
			CreatedAt:      now,
			SourceContext:  session,
		}
		rec.NormalizeSubjects()
		rec.SemanticHash = fusion.Fingerprint(rec)
		newRecords = append(newRecords, rec)
		texts = append(texts, rec.DisplayText)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Printf("engram: batch embedding failed, indexing metadata-only: %v", err)
		embeddings = make([][]float64, len(newRecords))
	}
	for i, rec := range newRecords {
		if i < len(embeddings) {
			rec.Embedding = vector.Normalize(embeddings[i])
		}
	}

	result := &BuildResult{}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewStoreError("Build", ErrClosed)
	}
	for _, rec := range newRecords {
		id, created := s.integrateLocked(ctx, rec, now)
		if created {
			result.Created++
		} else {
			result.Fused++
		}
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

// Insert indexes a prebuilt record, bypassing extraction. This is the write
// path for stores without an LLM provider. The record is normalized,
// fingerprinted, embedded, and fused against existing records like any
// extracted candidate; a missing id is generated.
func (s *Store) Insert(ctx context.Context, rec *record.MemoryRecord, opts ...Option) (*BuildResult, error) {
	if rec == nil || rec.DisplayText == "" {
		return nil, NewStoreError("Insert", ErrInvalidConfig)
	}
	o := applyOptions(opts)
	now := o.sctx.At(s.now())

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = s.node.Generate().String()
	}
	if rec.OwnerScope == "" {
		rec.OwnerScope = s.resolveScope(o.sctx)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.RelevanceScore <= 0 {
		rec.RelevanceScore = 0.5
	}
	rec.Confidence = rec.Confidence.Clamp()
	rec.Importance = rec.Importance.Clamp()
	rec.NormalizeSubjects()
	rec.SemanticHash = fusion.Fingerprint(rec)

	if len(rec.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, rec.DisplayText)
		if err != nil {
			log.Printf("engram: insert embedding failed, indexing metadata-only: %v", err)
		} else {
			rec.Embedding = vector.Normalize(vec)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewStoreError("Insert", ErrClosed)
	}
	result := &BuildResult{}
	id, created := s.integrateLocked(ctx, rec, now)
	if created {
		result.Created++
	} else {
		result.Fused++
	}
	result.IDs = append(result.IDs, id)
	return result, nil
}

// integrateLocked merges one new record into the store: exact fingerprint
// duplicates reinforce the existing record, near-duplicates (by vector
// neighborhood) fuse, everything else is indexed as new. Returns the id of
// the surviving record and whether a new record was created.
func (s *Store) integrateLocked(ctx context.Context, rec *record.MemoryRecord, now time.Time) (string, bool) {
	// Exact duplicate: same fingerprint, reinforce instead of re-adding.
	if id, ok := s.fingerprints[rec.SemanticHash]; ok {
		if existing, live := s.records[id]; live && s.sameScope(existing, rec) {
			existing.Touch(now)
			if rec.Importance > existing.Importance {
				existing.Importance = rec.Importance
			}
			if rec.Confidence > existing.Confidence {
				existing.Confidence = rec.Confidence
			}
			s.meta.Update(existing)
			s.saveRecord(ctx, existing)
			return existing.ID, false
		}
	}

	cluster := []*record.MemoryRecord{rec}
	if len(rec.Embedding) > 0 {
		matches, err := s.vectors.Search(ctx, rec.Embedding, fusionNeighborK)
		if err != nil {
			log.Printf("engram: neighbor search failed for %s: %v", rec.ID, err)
		}
		for _, m := range matches {
			if neighbor, ok := s.records[m.ID]; ok && s.sameScope(neighbor, rec) {
				cluster = append(cluster, neighbor)
			}
		}
	}

	_, merges := s.fusion.Fuse(cluster)
	if len(merges) == 0 {
		s.indexLocked(ctx, rec)
		return rec.ID, true
	}

	survivorID := rec.ID
	createdNew := true
	for _, m := range merges {
		for _, absorbed := range m.AbsorbedIDs {
			if absorbed == rec.ID {
				createdNew = false
				survivorID = m.RepresentativeID
				continue
			}
			s.removeLocked(ctx, absorbed)
		}
		rep := s.findInCluster(cluster, m.RepresentativeID)
		if rep == nil {
			continue
		}
		if rep.ID == rec.ID {
			s.indexLocked(ctx, rep)
		} else {
			// Existing representative changed in place; refresh indices.
			s.fingerprints[rep.SemanticHash] = rep.ID
			s.meta.Update(rep)
			s.saveRecord(ctx, rep)
		}
	}
	if createdNew && s.records[rec.ID] == nil {
		// The new record survived fusion untouched by any merge.
		s.indexLocked(ctx, rec)
	}
	return survivorID, createdNew
}

func (s *Store) findInCluster(cluster []*record.MemoryRecord, id string) *record.MemoryRecord {
	for _, rec := range cluster {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// indexLocked adds a record to every index. A vector insert failure
// (dimension mismatch) degrades to metadata-only indexing.
func (s *Store) indexLocked(ctx context.Context, rec *record.MemoryRecord) {
	s.records[rec.ID] = rec
	if rec.SemanticHash != "" {
		s.fingerprints[rec.SemanticHash] = rec.ID
	}
	s.meta.Add(rec)
	if len(rec.Embedding) > 0 {
		if err := s.vectors.Insert(ctx, rec.ID, rec.Embedding); err != nil {
			log.Printf("engram: vector insert failed for %s, metadata-only: %v", rec.ID, err)
			rec.Embedding = nil
		}
	}
	s.saveRecord(ctx, rec)
}

// removeLocked removes a record from every index and the record store.
func (s *Store) removeLocked(ctx context.Context, id string) {
	rec, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	if rec.SemanticHash != "" && s.fingerprints[rec.SemanticHash] == id {
		delete(s.fingerprints, rec.SemanticHash)
	}
	s.meta.Remove(id)
	if err := s.vectors.Remove(ctx, id); err != nil {
		log.Printf("engram: vector remove failed for %s: %v", id, err)
	}
	if s.persist != nil {
		if err := s.persist.Delete(ctx, id); err != nil {
			log.Printf("engram: record store delete failed for %s: %v", id, err)
		}
	}
}

func (s *Store) saveRecord(ctx context.Context, rec *record.MemoryRecord) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, rec); err != nil {
		log.Printf("engram: record store save failed for %s: %v", rec.ID, err)
	}
}

// sameScope reports whether two records share a memory pool under the
// configured scope mode.
func (s *Store) sameScope(a, b *record.MemoryRecord) bool {
	if s.cfg.Memory.ScopeMode != ScopePerScope {
		return true
	}
	return a.OwnerScope == b.OwnerScope
}

func (s *Store) resolveScope(sctx record.SessionContext) string {
	if sctx.ScopeID != "" {
		return sctx.ScopeID
	}
	return s.cfg.Memory.DefaultScope
}

// Retrieve runs the staged retrieval pipeline and returns up to the
// configured limit of records, best first. Access statistics are bumped
// exactly once per returned record.
func (s *Store) Retrieve(ctx context.Context, query string, opts ...Option) ([]*record.MemoryRecord, error) {
	o := applyOptions(opts)
	scope := s.resolveScope(o.sctx)
	now := o.sctx.At(s.now())

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, NewStoreError("Retrieve", ErrClosed)
	}
	empty := len(s.records) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	catalog := &scopedCatalog{store: s, scope: scope}
	orch := retrieval.NewOrchestrator(retrieval.Config{
		MetadataFilterLimit: s.cfg.Memory.MetadataFilterLimit,
		VectorThreshold:     s.cfg.Memory.VectorThreshold,
		SemanticThreshold:   s.cfg.Memory.SemanticThreshold,
	}, catalog, s.meta, s.vectors, s.embedder, s.planner)

	results, err := orch.Retrieve(ctx, query, o.sctx, o.limit)
	if err != nil {
		return nil, NewStoreError("Retrieve", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	// Bump access stats once per retrieved record and return copies so
	// callers cannot mutate indexed state.
	out := make([]*record.MemoryRecord, 0, len(results))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range results {
		live, ok := s.records[rec.ID]
		if !ok {
			continue
		}
		live.Touch(now)
		live.Score = rec.Score
		s.meta.Update(live)
		s.saveRecord(ctx, live)
		out = append(out, live.Clone())
	}
	return out, nil
}

// Maintenance runs one forgetting sweep followed by index compaction.
// It is safe to call concurrently with builds and retrievals.
func (s *Store) Maintenance(ctx context.Context) (*MaintenanceStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewStoreError("Maintenance", ErrClosed)
	}

	all := make([]*record.MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}

	normal, force, fstats := s.forget.CheckBatch(all)
	for _, id := range normal {
		s.removeLocked(ctx, id)
	}
	for _, id := range force {
		s.removeLocked(ctx, id)
	}

	live := make(map[string]struct{}, len(s.records))
	for id := range s.records {
		live[id] = struct{}{}
	}
	pruned := s.meta.Optimize(live)

	stats := &MaintenanceStats{
		Forgetting: fstats,
		Evicted:    len(normal) + len(force),
		Pruned:     pruned,
	}
	if stats.Evicted > 0 {
		log.Printf("engram: maintenance evicted %d records (%d forced), pruned %d index entries",
			stats.Evicted, len(force), pruned)
	}
	return stats, nil
}

// maintenanceLoop periodically runs Maintenance until the store shuts down.
func (s *Store) maintenanceLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Maintenance(ctx); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("engram: background maintenance failed: %v", err)
			}
		}
	}
}

// Reindex rebuilds the vector index from scratch, re-embedding records that
// lost their embedding. This is the force-reindex admin hook.
func (s *Store) Reindex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStoreError("Reindex", ErrClosed)
	}

	fresh, err := vector.New(s.cfg.Memory.IndexBackend, s.embedder.Dimensions())
	if err != nil {
		return NewStoreError("Reindex", err)
	}

	for _, rec := range s.records {
		if len(rec.Embedding) == 0 {
			vec, err := s.embedder.Embed(ctx, rec.DisplayText)
			if err != nil {
				log.Printf("engram: reindex embedding failed for %s: %v", rec.ID, err)
				continue
			}
			rec.Embedding = vector.Normalize(vec)
			s.saveRecord(ctx, rec)
		}
		if err := fresh.Insert(ctx, rec.ID, rec.Embedding); err != nil {
			log.Printf("engram: reindex skipping record %s: %v", rec.ID, err)
		}
	}

	old := s.vectors
	s.vectors = fresh
	_ = old.Close()
	return nil
}

// Stats returns the current index sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Records:       len(s.records),
		VectorEntries: s.vectors.Len(),
		MetaEntries:   s.meta.Len(),
	}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (*record.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, NewStoreError("Get", ErrNotFound)
	}
	return rec.Clone(), nil
}

// Delete removes a record by id across every index.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStoreError("Delete", ErrClosed)
	}
	if _, ok := s.records[id]; !ok {
		return NewStoreError("Delete", ErrNotFound)
	}
	s.removeLocked(ctx, id)
	return nil
}

// Shutdown stops background maintenance, flushes snapshots, and closes
// every provider and backend. The store is unusable afterwards.
func (s *Store) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	records := make([]*record.MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.Unlock()

	var errs []error
	if dir := s.cfg.Memory.SnapshotDir; dir != "" {
		if err := s.vectors.Snapshot(filepath.Join(dir, vectorSnapshotFile)); err != nil {
			errs = append(errs, err)
		}
		if err := s.meta.Snapshot(filepath.Join(dir, metaSnapshotFile)); err != nil {
			errs = append(errs, err)
		}
		if err := saveRecordSnapshot(filepath.Join(dir, recordSnapshotFile), records); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.llm != nil {
		if err := s.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.persist != nil {
		if err := s.persist.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return NewStoreError("Shutdown", errors.Join(errs...))
	}
	return nil
}

// scopedCatalog adapts the store to retrieval.Catalog, hiding records from
// other scopes when the store runs in per-scope mode.
type scopedCatalog struct {
	store *Store
	scope string
}

func (c *scopedCatalog) visible(rec *record.MemoryRecord) bool {
	if c.store.cfg.Memory.ScopeMode != ScopePerScope {
		return true
	}
	return rec.OwnerScope == c.scope
}

// Get returns a copy of the record with the given id when it is visible to
// the scope. Copies keep the pipeline's scoring off live records, which are
// only mutated under the store's write lock.
func (c *scopedCatalog) Get(id string) (*record.MemoryRecord, bool) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	rec, ok := c.store.records[id]
	if !ok || !c.visible(rec) {
		return nil, false
	}
	return rec.Clone(), true
}

// MostRecent returns up to n visible records, newest first, as copies.
func (c *scopedCatalog) MostRecent(n int) []*record.MemoryRecord {
	c.store.mu.RLock()
	ids := c.store.meta.TopByCreated(c.store.meta.Len())
	out := make([]*record.MemoryRecord, 0, n)
	for _, id := range ids {
		if len(out) >= n {
			break
		}
		if rec, ok := c.store.records[id]; ok && c.visible(rec) {
			out = append(out, rec.Clone())
		}
	}
	c.store.mu.RUnlock()
	return out
}

// newEmbedder constructs the configured embedding provider.
func newEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedderopenai.NewClient(&embedderopenai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "hash":
		return embedderhash.New(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// newLLM constructs the configured LLM provider.
func newLLM(cfg *LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return llmopenai.NewClient(&llmopenai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return llmollama.NewClient(&llmollama.Config{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// newRecordStore constructs the configured record store. The "none"
// provider keeps records in memory only.
func newRecordStore(cfg *RecordStoreConfig) (recordstore.RecordStore, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "sqlite":
		return rssqlite.NewClient(&rssqlite.Config{
			DBPath: getConfigString(cfg.Config, "db_path", "./engram.db"),
			Table:  getConfigString(cfg.Config, "table", "memories"),
		})
	case "postgres":
		return rspostgres.NewClient(&rspostgres.Config{
			Host:     getConfigString(cfg.Config, "host", "localhost"),
			Port:     getConfigInt(cfg.Config, "port", 5432),
			User:     getConfigString(cfg.Config, "user", "postgres"),
			Password: getConfigString(cfg.Config, "password", ""),
			DBName:   getConfigString(cfg.Config, "db_name", "engram"),
			Table:    getConfigString(cfg.Config, "table", "memories"),
			SSLMode:  getConfigString(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return rsmysql.NewClient(&rsmysql.Config{
			Host:     getConfigString(cfg.Config, "host", "localhost"),
			Port:     getConfigInt(cfg.Config, "port", 3306),
			User:     getConfigString(cfg.Config, "user", "root"),
			Password: getConfigString(cfg.Config, "password", ""),
			DBName:   getConfigString(cfg.Config, "db_name", "engram"),
			Table:    getConfigString(cfg.Config, "table", "memories"),
		})
	default:
		return nil, fmt.Errorf("%w: unknown record store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func getConfigString(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func getConfigInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
