package wire

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// MaxStreamsPerList bounds the stream lists carried in version and addr.
const MaxStreamsPerList = 160000

// StreamSet is a set of stream identifiers.
type StreamSet = mapset.Set[uint64]

// NewStreamSet returns a thread-safe set holding ids.
func NewStreamSet(ids ...uint64) StreamSet {
	return mapset.NewSet(ids...)
}

// SortedStreams returns the members of s in ascending order. A nil set is
// treated as empty.
func SortedStreams(s StreamSet) []uint64 {
	if s == nil {
		return nil
	}
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// StreamsOverlap reports whether a and b share at least one stream.
func StreamsOverlap(a, b StreamSet) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Intersect(b).Cardinality() > 0
}
