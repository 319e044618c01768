package bsdrive

import (
	"sort"
	"time"
)

// TimeRef is a blob-reference / timestamp pair.
// Abstractly, an anchor maps to one or more TimeRefs.
type TimeRef struct {
	T time.Time
	R Ref
}

// FindAnchor finds the ref in force at time `at`
// in a list of TimeRefs sorted by time:
// the last one whose timestamp is not later than `at`.
// Of several with the same timestamp, the last in the list wins.
func FindAnchor(pairs []TimeRef, at time.Time) (Ref, error) {
	index := sort.Search(len(pairs), func(n int) bool {
		return pairs[n].T.After(at)
	})
	if index == 0 {
		return Zero, ErrNotFound
	}
	return pairs[index-1].R, nil
}
