package pipeline

import (
	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/sqlgen"
)

type BatchEntry struct {
	Guide      string
	SourcePath string
	Record     internal.DarmRecord
	Statement  string
}

// BatchContext accumulates one run: the ordered emitted records and the set
// of guides claimed so far. Consolidation reads it and nothing else.
type BatchContext struct {
	entries []BatchEntry
	claims  map[string]int
}

func NewBatchContext() *BatchContext {
	return &BatchContext{claims: map[string]int{}}
}

// Claim marks a guide as in progress and reports whether it was already seen
// in this batch.
func (b *BatchContext) Claim(guide string) bool {
	seen := b.claims[guide] > 0
	b.claims[guide]++
	return seen
}

// Release undoes a Claim whose statement was never added.
func (b *BatchContext) Release(guide string) {
	if b.claims[guide] <= 1 {
		delete(b.claims, guide)
		return
	}
	b.claims[guide]--
}

func (b *BatchContext) Add(entry BatchEntry) {
	b.entries = append(b.entries, entry)
}

func (b *BatchContext) Seen(guide string) bool {
	return b.claims[guide] > 0
}

func (b *BatchContext) Len() int {
	return len(b.entries)
}

func (b *BatchContext) Entries() []BatchEntry {
	out := make([]BatchEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *BatchContext) Guides() []string {
	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.Guide)
	}
	return out
}

func (b *BatchContext) SQLEntries() []sqlgen.Entry {
	out := make([]sqlgen.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, sqlgen.Entry{Guide: e.Guide, Statement: e.Statement})
	}
	return out
}
