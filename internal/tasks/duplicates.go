package tasks

import (
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
)

// DuplicateSet lists the repeated occurrences in a playlist listing.
//
// The first occurrence of every track is kept; PositionsByID holds the positions of the later ones.
type DuplicateSet struct {
	PositionsByID map[string][]int
	IDs           []string // tracks with duplicates, in order of their first repeat
	RemovedCount  int
}

// FindDuplicates scans an ordered listing. Positions come from each track's Position.
func FindDuplicates(tracks []services.RemoteTrack) DuplicateSet {
	set := DuplicateSet{PositionsByID: map[string][]int{}}
	seen := make(map[string]bool, len(tracks))

	for _, t := range tracks {
		if !seen[t.ID] {
			seen[t.ID] = true
			continue
		}
		if _, ok := set.PositionsByID[t.ID]; !ok {
			set.IDs = append(set.IDs, t.ID)
		}
		set.PositionsByID[t.ID] = append(set.PositionsByID[t.ID], t.Position)
		set.RemovedCount++
	}
	return set
}

func (d DuplicateSet) Empty() bool {
	return d.RemovedCount == 0
}

// Batches groups the removals into positional descriptors of at most size tracks.
//
// Batches are applied one after another, so positions in a batch are shifted down by the number of
// positions removed by earlier batches that precede them.
func (d DuplicateSet) Batches(size int) [][]services.PositionedTrack {
	var (
		out     [][]services.PositionedTrack
		removed []int
	)
	for _, ids := range shared.Chunk(d.IDs, size) {
		batch := make([]services.PositionedTrack, 0, len(ids))
		var current []int
		for _, id := range ids {
			positions := make([]int, len(d.PositionsByID[id]))
			for i, p := range d.PositionsByID[id] {
				positions[i] = p - countBelow(removed, p)
				current = append(current, p)
			}
			batch = append(batch, services.PositionedTrack{ID: id, Positions: positions})
		}
		removed = append(removed, current...)
		out = append(out, batch)
	}
	return out
}

func countBelow(positions []int, p int) int {
	n := 0
	for _, q := range positions {
		if q < p {
			n++
		}
	}
	return n
}

// Distinct returns the first occurrence of every track, keeping order.
func Distinct(tracks []services.RemoteTrack) []services.RemoteTrack {
	seen := make(map[string]bool, len(tracks))
	out := make([]services.RemoteTrack, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
