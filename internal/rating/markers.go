package rating

import (
	"sort"
	"time"
)

const timeLayout = time.RFC3339Nano

// buildMarkers returns the sorted, deduplicated instants in [start, stop) at
// which a charging period begins.
//
// Only the first candidate tariff contributes restriction markers, and only
// through min_duration and max_duration. Every element counts, matching or not.
// Which element prices a period is decided separately in matchElement.
func buildMarkers(start, stop time.Time, series []Reading, governing Tariff) []time.Time {
	candidates := make([]time.Time, 0, len(series)+1+2*len(governing.Elements))
	candidates = append(candidates, start)
	for _, r := range series {
		candidates = append(candidates, r.Timestamp)
	}
	for _, element := range governing.Elements {
		r := element.Restrictions
		if r == nil {
			continue
		}
		if r.MinDuration != nil {
			candidates = append(candidates, start.Add(time.Duration(*r.MinDuration)*time.Second))
		}
		if r.MaxDuration != nil {
			candidates = append(candidates, start.Add(time.Duration(*r.MaxDuration)*time.Second))
		}
	}

	markers := make([]time.Time, 0, len(candidates))
	for _, t := range candidates {
		// boundaries outside the session are common (max_duration longer than
		// the session) and are dropped
		if t.Before(start) || !t.Before(stop) {
			continue
		}
		markers = append(markers, t)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Before(markers[j]) })

	deduped := markers[:0]
	for i, t := range markers {
		if i > 0 && t.Equal(deduped[len(deduped)-1]) {
			continue
		}
		deduped = append(deduped, t)
	}
	return deduped
}
