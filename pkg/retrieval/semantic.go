package retrieval

import (
	"strings"

	"github.com/engramlabs/engram-go/pkg/record"
)

// conceptGroups map interchangeable surface forms onto one concept, so
// "likes coffee" matches a record saying "enjoys espresso" even without
// embeddings.
var conceptGroups = [][]string{
	{"like", "likes", "love", "loves", "enjoy", "enjoys", "prefer", "prefers", "favorite", "favourite"},
	{"dislike", "dislikes", "hate", "hates", "avoid", "avoids"},
	{"work", "works", "job", "career", "company", "employer", "office"},
	{"live", "lives", "home", "house", "apartment", "address", "city"},
	{"eat", "eats", "food", "meal", "dinner", "lunch", "breakfast", "restaurant"},
	{"drink", "drinks", "coffee", "tea", "espresso", "latte", "beverage"},
	{"friend", "friends", "buddy", "colleague", "coworker"},
	{"family", "wife", "husband", "partner", "spouse", "mother", "father", "sister", "brother", "son", "daughter"},
	{"travel", "trip", "vacation", "visit", "visited", "flight"},
	{"buy", "bought", "purchase", "purchased", "own", "owns"},
	{"plan", "plans", "goal", "goals", "want", "wants", "intend", "intends"},
	{"meet", "met", "meeting", "appointment"},
}

var conceptOf = func() map[string]int {
	m := make(map[string]int)
	for i, group := range conceptGroups {
		for _, w := range group {
			m[w] = i
		}
	}
	return m
}()

// SemanticScore estimates query/record affinity in [0,1] from cheap lexical
// signals: token overlap on the display text, subject and object
// containment, keyword hits, and concept-group matches. It is the stage-4
// scorer and the text fallback when embeddings are unavailable.
func SemanticScore(queryTokens []string, rec *record.MemoryRecord) float64 {
	if len(queryTokens) == 0 || rec == nil {
		return 0
	}

	textTokens := record.Tokenize(rec.DisplayText)
	textSet := toSet(textTokens)

	var overlap float64
	if len(textSet) > 0 {
		hits := 0
		for _, q := range queryTokens {
			if _, ok := textSet[q]; ok {
				hits++
			}
		}
		overlap = float64(hits) / float64(len(queryTokens))
	}

	var subject float64
	queryJoined := " " + strings.Join(queryTokens, " ") + " "
	for _, s := range rec.Subjects {
		for _, tok := range record.Tokenize(s) {
			if strings.Contains(queryJoined, " "+tok+" ") {
				subject = 1
				break
			}
		}
		if subject > 0 {
			break
		}
	}

	var object float64
	for _, tok := range record.Tokenize(rec.Object) {
		if strings.Contains(queryJoined, " "+tok+" ") {
			object = 1
			break
		}
	}

	var keyword float64
	if len(rec.Keywords) > 0 {
		hits := 0
		qset := toSet(queryTokens)
		for _, k := range rec.Keywords {
			if _, ok := qset[k]; ok {
				hits++
			}
		}
		keyword = float64(hits) / float64(len(rec.Keywords))
	}

	concept := conceptOverlap(queryTokens, textTokens, rec.Keywords)

	score := 0.40*overlap + 0.20*subject + 0.15*object + 0.15*keyword + 0.10*concept
	if score > 1 {
		score = 1
	}
	return score
}

// conceptOverlap returns the fraction of query concepts also present in the
// record's text or keywords.
func conceptOverlap(queryTokens, textTokens, keywords []string) float64 {
	queryConcepts := make(map[int]struct{})
	for _, q := range queryTokens {
		if c, ok := conceptOf[q]; ok {
			queryConcepts[c] = struct{}{}
		}
	}
	if len(queryConcepts) == 0 {
		return 0
	}

	recConcepts := make(map[int]struct{})
	for _, t := range textTokens {
		if c, ok := conceptOf[t]; ok {
			recConcepts[c] = struct{}{}
		}
	}
	for _, k := range keywords {
		if c, ok := conceptOf[k]; ok {
			recConcepts[c] = struct{}{}
		}
	}

	hits := 0
	for c := range queryConcepts {
		if _, ok := recConcepts[c]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryConcepts))
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
