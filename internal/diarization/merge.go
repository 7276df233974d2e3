package diarization

import "sort"

// SortIntervals orders intervals by start time. Intervals with equal start
// keep the order the backend returned them in.
func SortIntervals(intervals []Interval) []Interval {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

// Merge collapses every run of consecutive same-speaker intervals into one
// interval spanning from the earliest start in the run to the end of the last
// interval in the run. Input must already be sorted by start. The result
// never has two adjacent intervals with the same speaker; an empty input
// yields an empty, non-nil slice.
func Merge(sorted []Interval) []Interval {
	merged := make([]Interval, 0, len(sorted))
	if len(sorted) == 0 {
		return merged
	}

	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Speaker == current.Speaker {
			next.Start = current.Start
		} else {
			merged = append(merged, current)
		}
		current = next
	}
	return append(merged, current)
}
