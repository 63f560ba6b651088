package sqlgen

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Entry is one individual statement in batch order.
type Entry struct {
	Guide     string
	Statement string
}

type Stats struct {
	Input      int
	Duplicates int
	Malformed  int
	Rows       int
	// Sequences holds the SQ_DOC literal of each emitted row, by guide.
	Sequences []Sequence
}

type Sequence struct {
	Guide string
	Value int64
}

// Consolidate merges individual statements into one multi-row insert. Row order
// follows entry order; byte-identical statements collapse to their first
// occurrence; the SQ_DOC expression is replaced by a literal derived from the
// guide, batchTime and the row index.
func (e *Emitter) Consolidate(entries []Entry, batchTime time.Time) (string, Stats, error) {
	stats := Stats{Input: len(entries)}
	millis := batchTime.UnixMilli()

	seen := make(map[uint64]struct{}, len(entries))
	used := make(map[int64]string, len(entries))
	var tuples [][]string

	for _, entry := range entries {
		h := xxh3.HashString(entry.Statement)
		if _, dup := seen[h]; dup {
			stats.Duplicates++
			continue
		}
		seen[h] = struct{}{}

		values, err := ParseValues(entry.Statement)
		if err != nil {
			stats.Malformed++
			continue
		}

		seq := SequenceLiteral(entry.Guide, millis, len(tuples))
		if prev, clash := used[seq]; clash {
			return "", stats, fmt.Errorf("%w: guides %s and %s both map to %d", ErrSequenceCollision, prev, entry.Guide, seq)
		}
		used[seq] = entry.Guide

		row := make([]string, len(values))
		copy(row, values)
		row[SequenceIndex] = strconv.FormatInt(seq, 10)
		tuples = append(tuples, row)
		stats.Sequences = append(stats.Sequences, Sequence{Guide: entry.Guide, Value: seq})
	}

	stats.Rows = len(tuples)
	if len(tuples) == 0 {
		return "", stats, ErrEmptyBatch
	}
	return e.render(tuples, true), stats, nil
}
