// Package fusion merges near-duplicate memory records into one canonical
// record before they enter the indices. Duplicates are detected by exact
// content fingerprint or by a weighted composite similarity; candidates are
// clustered by connected components and each cluster collapses into its
// highest-scoring representative.
package fusion

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/engramlabs/engram-go/pkg/record"
)

// Fingerprint computes the semantic content hash of a record: a sha256 over
// the sorted unique display-text tokens plus the memory type. Two records
// with the same fingerprint are exact duplicates regardless of punctuation,
// casing or word order.
func Fingerprint(rec *record.MemoryRecord) string {
	tokens := record.Tokenize(rec.DisplayText)
	seen := make(map[string]bool, len(tokens))
	uniq := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			uniq = append(uniq, t)
		}
	}
	sort.Strings(uniq)

	h := sha256.New()
	h.Write([]byte(rec.Type.Wire()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(uniq, " ")))
	return hex.EncodeToString(h.Sum(nil))
}
