// Package section buckets a continuous numeric field (price and the
// like) into a target number of non-empty contiguous ranges. Bucket
// boundaries are data-dependent: the caller first obtains mean and
// standard deviation from an extended-stats aggregation, then asks for
// a fine-grained range list, and finally merges the returned counts
// down to the target count.
package section

import "math"

// Range is a half-open numeric interval [From, To). The first range of
// a list omits From, the last omits To.
type Range struct {
	From     *float64 `json:"from,omitempty"`
	To       *float64 `json:"to,omitempty"`
	DocCount int64    `json:"doc_count,omitempty"`
}

// Partitioner holds the bucketing knobs, normally sourced from config.
type Partitioner struct {
	// Ladder of "nice" bucket widths, ascending. Default 10,20,30,50,100.
	Ladder []float64
	// Rate multiplies the target section count into the child range
	// count handed to the range aggregation. Default 20.
	Rate int
	// BucketCount divides the confidence window when deriving the raw
	// bucket width. Default 120.
	BucketCount int
}

var defaultLadder = []float64{10, 20, 30, 50, 100}

func (p Partitioner) ladder() []float64 {
	if len(p.Ladder) > 0 {
		return p.Ladder
	}
	return defaultLadder
}

func (p Partitioner) rate() int {
	if p.Rate > 0 {
		return p.Rate
	}
	return 20
}

func (p Partitioner) bucketCount() int {
	if p.BucketCount > 0 {
		return p.BucketCount
	}
	return 120
}

// ComputeBucketSize derives a bucket width from the population's 95%
// confidence window [max(0, mean-2*std), mean+2*std] divided into
// bucketCount raw buckets, then snaps the raw width onto the ladder.
// Raw widths at or below 20 snap to 10; widths above the ladder's top
// rung snap to the nearest multiple of 100. Between rungs the lower
// rung wins when the raw width is at or below the midpoint.
func (p Partitioner) ComputeBucketSize(mean, stdDev float64, bucketCount int) float64 {
	if bucketCount <= 0 {
		bucketCount = p.bucketCount()
	}
	low := math.Max(0, mean-2*stdDev)
	high := mean + 2*stdDev
	raw := (high - low) / float64(bucketCount)

	ladder := p.ladder()
	if raw <= 20 {
		return ladder[0]
	}
	top := ladder[len(ladder)-1]
	if raw > top {
		snapped := math.Round(raw/100) * 100
		if snapped < 100 {
			snapped = 100
		}
		return snapped
	}
	for i := 0; i < len(ladder)-1; i++ {
		lo, hi := ladder[i], ladder[i+1]
		if raw <= lo {
			return lo
		}
		if raw <= hi {
			if raw <= (lo+hi)/2 {
				return lo
			}
			return hi
		}
	}
	return top
}

// BuildRangeList produces Rate*sectionCount equal-width child ranges
// over the confidence window, using the snapped bucket size as width.
// The width derives from the configured BucketCount; the child range
// count from Rate. The first range is open on the left, the last on
// the right.
func (p Partitioner) BuildRangeList(mean, stdDev float64, sectionCount int) []Range {
	if sectionCount <= 0 {
		return nil
	}
	count := p.rate() * sectionCount
	width := p.ComputeBucketSize(mean, stdDev, p.bucketCount())
	low := math.Max(0, mean-2*stdDev)

	out := make([]Range, 0, count)
	for i := 0; i < count; i++ {
		from := low + float64(i)*width
		to := from + width
		r := Range{}
		if i > 0 {
			f := from
			r.From = &f
		}
		if i < count-1 {
			t := to
			r.To = &t
		}
		out = append(out, r)
	}
	return out
}

// MergeChildSections greedily merges fine-grained child buckets into
// targetCount contiguous groups of roughly equal document count. The
// tie-break on an overshooting bucket compares the running-sum midpoint
// against the per-group average using plain float64 arithmetic
// throughout. The last group absorbs every remaining child. When
// optimize is set, zero-count groups are dropped and the surviving
// boundaries re-stitched so the sequence stays contiguous.
func (p Partitioner) MergeChildSections(childs []Range, totalDocCount int64, targetCount int, optimize bool) []Range {
	if len(childs) == 0 || totalDocCount == 0 || targetCount <= 0 {
		return nil
	}

	avg := float64(totalDocCount) / float64(targetCount)
	groups := make([]Range, 0, targetCount)
	i := 0

	for t := targetCount; t >= 1 && i < len(childs); t-- {
		group := Range{From: childs[i].From}

		if t == 1 {
			// Final group absorbs the rest regardless of size.
			var sum int64
			for ; i < len(childs); i++ {
				sum += childs[i].DocCount
				group.To = childs[i].To
			}
			group.DocCount = sum
			groups = append(groups, group)
			break
		}

		var sum int64
		for i < len(childs) {
			next := childs[i].DocCount
			if float64(sum+next) <= avg {
				sum += next
				group.To = childs[i].To
				i++
				if float64(sum) >= avg {
					break
				}
				continue
			}
			// Overshoot: include the bucket when the average sits at or
			// beyond the midpoint of (sum, sum+next), else defer it to
			// the next group. An empty group always takes the bucket so
			// grouping advances.
			midpoint := (float64(sum) + float64(sum+next)) / 2
			if avg <= midpoint || sum == 0 {
				sum += next
				group.To = childs[i].To
				i++
			}
			break
		}
		group.DocCount = sum
		groups = append(groups, group)
	}

	if optimize {
		groups = dropEmpty(groups)
	}
	return restitch(groups)
}

// dropEmpty removes zero-count groups; their span is absorbed by the
// neighbor re-stitch.
func dropEmpty(groups []Range) []Range {
	out := make([]Range, 0, len(groups))
	for _, g := range groups {
		if g.DocCount > 0 {
			out = append(out, g)
		}
	}
	return out
}

// restitch re-establishes contiguity after grouping or dropping: the
// first group loses its lower bound, the last its upper bound, and each
// interior From is pinned to the previous survivor's To.
func restitch(groups []Range) []Range {
	if len(groups) == 0 {
		return nil
	}
	out := make([]Range, len(groups))
	copy(out, groups)

	out[0].From = nil
	out[len(out)-1].To = nil
	for k := 1; k < len(out); k++ {
		out[k].From = out[k-1].To
	}
	return out
}
