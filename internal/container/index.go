// Package container holds what the demuxers share: the per-sample index
// used to answer seeks.
package container

import (
	"sort"

	"github.com/NekoSaan/h264Player/internal/media"
)

// Entry is one sample of the index, in decode order.
type Entry struct {
	PTS      int64
	Duration int64
	Keyframe bool
}

// Index maps timestamps to sample numbers. Entries must be sorted by PTS,
// which holds for the streams handled here (no reordering).
type Index struct {
	entries []Entry
}

func (ix *Index) Add(e Entry) {
	ix.entries = append(ix.entries, e)
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) At(i int) Entry {
	return ix.entries[i]
}

// Duration is the end time of the last sample.
func (ix *Index) Duration() int64 {
	if len(ix.entries) == 0 {
		return 0
	}
	last := ix.entries[len(ix.entries)-1]
	return last.PTS + last.Duration
}

// Locate returns the sample to continue reading from after a seek to ts.
// SeekBackward picks the last keyframe at or before ts, falling back to
// the first keyframe. SeekAny picks the first sample at or after ts, which
// is Len() when ts is past the last sample. ok is false for an empty index.
func (ix *Index) Locate(ts int64, mode media.SeekMode) (int, bool) {
	n := len(ix.entries)
	if n == 0 {
		return 0, false
	}

	// first sample with PTS >= ts
	at := sort.Search(n, func(i int) bool { return ix.entries[i].PTS >= ts })

	if mode == media.SeekAny {
		return at, true
	}

	// last sample with PTS <= ts
	i := at
	if i == n || ix.entries[i].PTS > ts {
		i--
	}
	for ; i >= 0; i-- {
		if ix.entries[i].Keyframe {
			return i, true
		}
	}
	for i = 0; i < n; i++ {
		if ix.entries[i].Keyframe {
			return i, true
		}
	}
	return 0, true
}
