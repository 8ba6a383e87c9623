// Package metaindex maintains the multi-dimensional secondary index over
// memory records: inverted maps for type, subject, keyword, tag, category,
// confidence, importance and semantic hash, plus four pre-sorted ranked
// lists (created_at, relevance, access_count, last_accessed) kept ordered
// on insertion.
//
// All mutations are applied atomically across every structure under one
// critical section, so the inverted maps and ranked lists can never disagree.
package metaindex

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/engramlabs/engram-go/pkg/record"
)

type idSet map[string]struct{}

func (s idSet) add(id string)    { s[id] = struct{}{} }
func (s idSet) remove(id string) { delete(s, id) }

// entry is the per-record projection the index keeps so that removals and
// updates can undo exactly what was inserted.
type entry struct {
	Type       record.MemoryType `json:"memory_type"`
	Subjects   []string          `json:"subjects,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Confidence record.Confidence `json:"confidence"`
	Importance record.Importance `json:"importance"`
	Hash       string            `json:"semantic_hash,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Accessed   time.Time         `json:"last_accessed,omitempty"`
	Relevance  float64           `json:"relevance_score"`
	Access     int               `json:"access_count"`
}

// accessedKey ranks by last access, falling back to creation time for
// never-accessed records (and for entries loaded from older snapshots).
func (e entry) accessedKey() float64 {
	if e.Accessed.IsZero() {
		return float64(e.CreatedAt.UnixNano())
	}
	return float64(e.Accessed.UnixNano())
}

// rankedEntry is one element of a pre-sorted ranked list.
type rankedEntry struct {
	id  string
	key float64
}

// Index is the multi-dimensional metadata index.
type Index struct {
	mu sync.RWMutex

	entries map[string]entry

	byType       map[string]idSet
	bySubject    map[string]idSet
	byKeyword    map[string]idSet
	byTag        map[string]idSet
	byCategory   map[string]idSet
	byConfidence map[string]idSet
	byImportance map[string]idSet
	byHash       map[string]idSet

	byCreated   []rankedEntry // created_at desc
	byRelevance []rankedEntry // relevance desc
	byAccess    []rankedEntry // access_count desc
	byAccessed  []rankedEntry // last_accessed desc
}

// New creates an empty metadata index.
func New() *Index {
	return &Index{
		entries:      make(map[string]entry),
		byType:       make(map[string]idSet),
		bySubject:    make(map[string]idSet),
		byKeyword:    make(map[string]idSet),
		byTag:        make(map[string]idSet),
		byCategory:   make(map[string]idSet),
		byConfidence: make(map[string]idSet),
		byImportance: make(map[string]idSet),
		byHash:       make(map[string]idSet),
	}
}

// Add indexes a record across every dimension. Re-adding an id replaces its
// previous entry atomically.
func (x *Index) Add(rec *record.MemoryRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(rec.ID)
	x.addLocked(rec.ID, project(rec))
}

// Remove un-indexes a record from every dimension. Removing an absent id is
// a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)
}

// Update re-projects a record whose attributes or stats changed.
func (x *Index) Update(rec *record.MemoryRecord) {
	x.Add(rec)
}

// Len reports the number of indexed records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// AllIDs returns every indexed id.
func (x *Index) AllIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	return ids
}

func project(rec *record.MemoryRecord) entry {
	return entry{
		Type:       rec.Type,
		Subjects:   subjectTokens(rec.Subjects),
		Keywords:   record.NormalizeTokens(rec.Keywords),
		Tags:       record.NormalizeTokens(rec.Tags),
		Categories: record.NormalizeTokens(rec.Categories),
		Confidence: rec.Confidence,
		Importance: rec.Importance,
		Hash:       rec.SemanticHash,
		CreatedAt:  rec.CreatedAt,
		Accessed:   rec.LastAccessed,
		Relevance:  rec.RelevanceScore,
		Access:     rec.AccessCount,
	}
}

// subjectTokens splits multi-word subjects into individual index tokens while
// keeping the full normalized subject as well.
func subjectTokens(subjects []string) []string {
	out := record.NormalizeTokens(subjects)
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range subjects {
		for _, tok := range record.Tokenize(s) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}

func (x *Index) addLocked(id string, e entry) {
	x.entries[id] = e

	addTo(x.byType, e.Type.Wire(), id)
	for _, s := range e.Subjects {
		addTo(x.bySubject, s, id)
	}
	for _, k := range e.Keywords {
		addTo(x.byKeyword, k, id)
	}
	for _, t := range e.Tags {
		addTo(x.byTag, t, id)
	}
	for _, c := range e.Categories {
		addTo(x.byCategory, c, id)
	}
	addTo(x.byConfidence, e.Confidence.Wire(), id)
	addTo(x.byImportance, e.Importance.Wire(), id)
	if e.Hash != "" {
		addTo(x.byHash, e.Hash, id)
	}

	x.byCreated = rankedInsert(x.byCreated, rankedEntry{id, float64(e.CreatedAt.UnixNano())})
	x.byRelevance = rankedInsert(x.byRelevance, rankedEntry{id, e.Relevance})
	x.byAccess = rankedInsert(x.byAccess, rankedEntry{id, float64(e.Access)})
	x.byAccessed = rankedInsert(x.byAccessed, rankedEntry{id, e.accessedKey()})
}

func (x *Index) removeLocked(id string) {
	e, ok := x.entries[id]
	if !ok {
		return
	}
	delete(x.entries, id)

	removeFrom(x.byType, e.Type.Wire(), id)
	for _, s := range e.Subjects {
		removeFrom(x.bySubject, s, id)
	}
	for _, k := range e.Keywords {
		removeFrom(x.byKeyword, k, id)
	}
	for _, t := range e.Tags {
		removeFrom(x.byTag, t, id)
	}
	for _, c := range e.Categories {
		removeFrom(x.byCategory, c, id)
	}
	removeFrom(x.byConfidence, e.Confidence.Wire(), id)
	removeFrom(x.byImportance, e.Importance.Wire(), id)
	if e.Hash != "" {
		removeFrom(x.byHash, e.Hash, id)
	}

	x.byCreated = rankedRemove(x.byCreated, id)
	x.byRelevance = rankedRemove(x.byRelevance, id)
	x.byAccess = rankedRemove(x.byAccess, id)
	x.byAccessed = rankedRemove(x.byAccessed, id)
}

func addTo(m map[string]idSet, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set.add(id)
}

func removeFrom(m map[string]idSet, key, id string) {
	if set, ok := m[key]; ok {
		set.remove(id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

// rankedInsert keeps the list sorted by key descending via binary search.
func rankedInsert(list []rankedEntry, e rankedEntry) []rankedEntry {
	i := sort.Search(len(list), func(i int) bool { return list[i].key <= e.key })
	list = append(list, rankedEntry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

func rankedRemove(list []rankedEntry, id string) []rankedEntry {
	for i, e := range list {
		if e.id == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Filter selects records across index dimensions. Dimensions left empty are
// not constrained; supplied dimensions are AND-combined. Multiple values
// inside one dimension are OR-combined.
type Filter struct {
	Types        []record.MemoryType
	Subjects     []string
	Keywords     []string
	Tags         []string
	Categories   []string
	Confidences  []record.Confidence
	Importances  []record.Importance
	SemanticHash string
}

// Empty reports whether no dimension is constrained.
func (f Filter) Empty() bool {
	return len(f.Types) == 0 && len(f.Subjects) == 0 && len(f.Keywords) == 0 &&
		len(f.Tags) == 0 && len(f.Categories) == 0 && len(f.Confidences) == 0 &&
		len(f.Importances) == 0 && f.SemanticHash == ""
}

// Query returns the ids matching every supplied dimension. Supplying zero
// filters returns the full id set. A value whose exact key has no matches
// degrades to substring containment against existing keys before the
// dimension is considered empty.
func (x *Index) Query(f Filter) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if f.Empty() {
		ids := make([]string, 0, len(x.entries))
		for id := range x.entries {
			ids = append(ids, id)
		}
		return ids
	}

	var result idSet
	intersect := func(dim idSet) bool {
		if dim == nil {
			result = idSet{}
			return false
		}
		if result == nil {
			result = dim
			return true
		}
		next := make(idSet)
		for id := range result {
			if _, ok := dim[id]; ok {
				next.add(id)
			}
		}
		result = next
		return len(result) > 0
	}

	if len(f.Types) > 0 {
		keys := make([]string, len(f.Types))
		for i, t := range f.Types {
			keys[i] = t.Wire()
		}
		if !intersect(x.lookup(x.byType, keys)) {
			return nil
		}
	}
	if len(f.Subjects) > 0 {
		if !intersect(x.lookup(x.bySubject, record.NormalizeTokens(f.Subjects))) {
			return nil
		}
	}
	if len(f.Keywords) > 0 {
		if !intersect(x.lookup(x.byKeyword, record.NormalizeTokens(f.Keywords))) {
			return nil
		}
	}
	if len(f.Tags) > 0 {
		if !intersect(x.lookup(x.byTag, record.NormalizeTokens(f.Tags))) {
			return nil
		}
	}
	if len(f.Categories) > 0 {
		if !intersect(x.lookup(x.byCategory, record.NormalizeTokens(f.Categories))) {
			return nil
		}
	}
	if len(f.Confidences) > 0 {
		keys := make([]string, len(f.Confidences))
		for i, c := range f.Confidences {
			keys[i] = c.Wire()
		}
		if !intersect(x.lookup(x.byConfidence, keys)) {
			return nil
		}
	}
	if len(f.Importances) > 0 {
		keys := make([]string, len(f.Importances))
		for i, imp := range f.Importances {
			keys[i] = imp.Wire()
		}
		if !intersect(x.lookup(x.byImportance, keys)) {
			return nil
		}
	}
	if f.SemanticHash != "" {
		if !intersect(x.lookup(x.byHash, []string{f.SemanticHash})) {
			return nil
		}
	}

	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	return ids
}

// lookup unions the id sets for the given keys. An exact miss degrades to
// substring containment over the dimension's existing keys before giving up.
// Returns nil when nothing matched at all.
func (x *Index) lookup(m map[string]idSet, keys []string) idSet {
	out := make(idSet)
	for _, key := range keys {
		if set, ok := m[key]; ok {
			for id := range set {
				out.add(id)
			}
			continue
		}
		// Degrade to substring containment in either direction.
		for existing, set := range m {
			if strings.Contains(existing, key) || strings.Contains(key, existing) {
				for id := range set {
					out.add(id)
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TopByCreated returns up to n ids ordered by creation time descending.
func (x *Index) TopByCreated(n int) []string { return x.top(&x.byCreated, n) }

// TopByRelevance returns up to n ids ordered by relevance descending.
func (x *Index) TopByRelevance(n int) []string { return x.top(&x.byRelevance, n) }

// TopByAccess returns up to n ids ordered by access count descending.
func (x *Index) TopByAccess(n int) []string { return x.top(&x.byAccess, n) }

// TopByAccessed returns up to n ids ordered by last access time descending.
// Never-accessed records rank by creation time.
func (x *Index) TopByAccessed(n int) []string { return x.top(&x.byAccessed, n) }

func (x *Index) top(list *[]rankedEntry, n int) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if n <= 0 || n > len(*list) {
		n = len(*list)
	}
	ids := make([]string, 0, n)
	for _, e := range (*list)[:n] {
		ids = append(ids, e.id)
	}
	return ids
}

// Optimize prunes ids no longer in the live set and rebuilds the ranked
// lists from scratch. Returns the number of pruned entries.
func (x *Index) Optimize(live map[string]struct{}) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	var orphans []string
	for id := range x.entries {
		if _, ok := live[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	for _, id := range orphans {
		x.removeLocked(id)
	}

	x.byCreated = x.byCreated[:0]
	x.byRelevance = x.byRelevance[:0]
	x.byAccess = x.byAccess[:0]
	x.byAccessed = x.byAccessed[:0]
	for id, e := range x.entries {
		x.byCreated = rankedInsert(x.byCreated, rankedEntry{id, float64(e.CreatedAt.UnixNano())})
		x.byRelevance = rankedInsert(x.byRelevance, rankedEntry{id, e.Relevance})
		x.byAccess = rankedInsert(x.byAccess, rankedEntry{id, float64(e.Access)})
		x.byAccessed = rankedInsert(x.byAccessed, rankedEntry{id, e.accessedKey()})
	}
	return len(orphans)
}
