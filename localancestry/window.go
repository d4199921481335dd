package localancestry

import (
	"context"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

const (
	windowSize = 25_000_000
	windowStep = 10_000_000

	windowInformativeness = 0.1

	// Merging and filtering thresholds for the raw window calls.
	windowMergeGap      = 1_000_000
	windowMinSegment    = 5_000_000
	windowMinConfidence = 0.3

	// A whole-chromosome fallback call is discounted relative to a window
	// call backed by local markers.
	fallbackDiscount = 0.8
)

// WindowCalls runs the sliding-window ancestry caller on every chromosome the
// AIM table covers. Windows of 25 Mb advance in 10 Mb steps; each window with
// at least one informative marker gets a maximum-likelihood call, and the
// calls are merged, filtered, and gap-filled into segments that exactly tile
// [0, chromosome length). Chromosomes without any informative markers produce
// no segments.
func (e *Engine) WindowCalls(ctx context.Context, file *snpparser.ParsedFile) (map[string][]ancestry.Segment, error) {
	lengths, err := e.chromosomeLengths()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]ancestry.Segment)
	for _, chromosome := range e.Table.Chromosomes() {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}

		length, ok := lengths[chromosome]
		if !ok {
			continue
		}

		segments := e.windowChromosome(file, chromosome, length)
		if len(segments) > 0 {
			out[chromosome] = segments
		}
	}

	return out, nil
}

func (e *Engine) windowChromosome(file *snpparser.ParsedFile, chromosome string, length int) []ancestry.Segment {
	markers := e.chromosomeMarkers(file, chromosome, windowInformativeness)
	if len(markers) == 0 {
		return nil
	}

	var calls []ancestry.Segment
	for start := 0; start < length; start += windowStep {
		end := start + windowSize
		if end > length {
			end = length
		}

		call, ok := callWindow(markers, chromosome, start, end)
		if ok {
			calls = append(calls, call)
		}

		if end == length {
			break
		}
	}

	segments := mergeAdjacent(calls, windowMergeGap)

	kept := segments[:0]
	for _, seg := range segments {
		if seg.Length() < windowMinSegment || seg.Confidence < windowMinConfidence {
			continue
		}
		kept = append(kept, seg)
	}
	segments = kept

	if len(segments) == 0 {
		// No window survived: fall back to one discounted whole-chromosome
		// call.
		call, ok := callWindow(markers, chromosome, 0, length)
		if !ok {
			return nil
		}
		call.Confidence *= fallbackDiscount
		return []ancestry.Segment{call}
	}

	segments = resolveOverlaps(segments)
	segments = fillGaps(segments, chromosome, length)

	return mergeAdjacent(segments, 0)
}

// resolveOverlaps splits the overlap between consecutive differing-population
// segments at its midpoint, so that the set can tile the chromosome. Windows
// overlap by construction (25 Mb spans on a 10 Mb step), so this is the
// common case, not a corner case.
func resolveOverlaps(segments []ancestry.Segment) []ancestry.Segment {
	for i := 1; i < len(segments); i++ {
		prev, cur := &segments[i-1], &segments[i]
		if cur.Start >= prev.End {
			continue
		}

		boundary := (cur.Start + prev.End) / 2
		prev.End = boundary
		cur.Start = boundary
	}

	out := segments[:0]
	for _, seg := range segments {
		if seg.Length() > 0 {
			out = append(out, seg)
		}
	}

	return out
}

// callWindow produces a maximum-likelihood ancestry call over the markers
// within [start, end). The second return is false when the window covers no
// informative markers.
func callWindow(markers []chromosomeMarker, chromosome string, start, end int) (ancestry.Segment, bool) {
	logLik := make([]float64, len(aim.Populations))
	n := 0

	for _, m := range markers {
		if m.position < start || m.position >= end {
			continue
		}
		for s, le := range m.logEmit {
			logLik[s] += le
		}
		n++
	}

	if n == 0 {
		return ancestry.Segment{}, false
	}

	probs := hwe.Softmax(logLik)
	best := 0
	for s, p := range probs {
		if p > probs[best] {
			best = s
		}
	}

	pop := aim.Populations[best]

	return ancestry.Segment{
		Chromosome: chromosome,
		Start:      start,
		End:        end,
		Population: pop,
		Category:   aim.PopulationNames[pop],
		Confidence: probs[best],
	}, true
}

// mergeAdjacent merges start-sorted segments of the same population whose gap
// (or overlap) is at most maxGap, length-weighting the merged confidence.
func mergeAdjacent(segments []ancestry.Segment, maxGap int) []ancestry.Segment {
	if len(segments) == 0 {
		return nil
	}

	out := []ancestry.Segment{segments[0]}
	for _, seg := range segments[1:] {
		last := &out[len(out)-1]
		if seg.Population == last.Population && seg.Start-last.End <= maxGap {
			merged := *last
			merged.Confidence = weightedConfidence(*last, seg)
			if seg.End > merged.End {
				merged.End = seg.End
			}
			*last = merged
			continue
		}
		out = append(out, seg)
	}

	return out
}

func weightedConfidence(a, b ancestry.Segment) float64 {
	la, lb := float64(a.Length()), float64(b.Length())
	if la+lb == 0 {
		return a.Confidence
	}

	return (a.Confidence*la + b.Confidence*lb) / (la + lb)
}

// fillGaps extends the segment set to tile [0, length): each uncovered run is
// assigned the population of its higher-confidence neighbor at half that
// neighbor's confidence.
func fillGaps(segments []ancestry.Segment, chromosome string, length int) []ancestry.Segment {
	var out []ancestry.Segment

	fill := func(start, end int, from ancestry.Segment) {
		out = append(out, ancestry.Segment{
			Chromosome: chromosome,
			Start:      start,
			End:        end,
			Population: from.Population,
			Category:   from.Category,
			Confidence: from.Confidence / 2,
		})
	}

	if segments[0].Start > 0 {
		fill(0, segments[0].Start, segments[0])
	}

	for i, seg := range segments {
		out = append(out, seg)
		if i+1 < len(segments) && segments[i+1].Start > seg.End {
			neighbor := seg
			if segments[i+1].Confidence > seg.Confidence {
				neighbor = segments[i+1]
			}
			fill(seg.End, segments[i+1].Start, neighbor)
		}
	}

	if last := segments[len(segments)-1]; last.End < length {
		fill(last.End, length, last)
	}

	return out
}
