// Package diarize defines the speaker diarization capability and the
// rule merging its segments with a chunk's transcript.
package diarize

import (
	"context"
	"time"
)

// Segment is one speaker-labeled span within a chunk, expressed as
// offsets from the chunk start.
type Segment struct {
	Label string
	Start time.Duration
	End   time.Duration
}

// Diarizer produces speaker segments for one chunk of audio.
type Diarizer interface {
	Diarize(ctx context.Context, pcm []byte, sampleRate int, duration time.Duration) ([]Segment, error)
}

// DominantLabel returns the speaker whose segments overlap the largest
// portion of the chunk, breaking ties by earliest segment start and
// then by label, so the result never depends on segment order. Returns
// the empty string when no segment overlaps the chunk.
func DominantLabel(segments []Segment, chunkDuration time.Duration) string {
	type tally struct {
		overlap time.Duration
		first   time.Duration
	}
	totals := make(map[string]*tally)

	for _, seg := range segments {
		start, end := seg.Start, seg.End
		if start < 0 {
			start = 0
		}
		if end > chunkDuration {
			end = chunkDuration
		}
		if end <= start || seg.Label == "" {
			continue
		}
		t, ok := totals[seg.Label]
		if !ok {
			t = &tally{first: start}
			totals[seg.Label] = t
		}
		t.overlap += end - start
		if start < t.first {
			t.first = start
		}
	}

	var best string
	for label, t := range totals {
		if best == "" {
			best = label
			continue
		}
		b := totals[best]
		switch {
		case t.overlap != b.overlap:
			if t.overlap > b.overlap {
				best = label
			}
		case t.first != b.first:
			if t.first < b.first {
				best = label
			}
		case label < best:
			best = label
		}
	}
	return best
}
