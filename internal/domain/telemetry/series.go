package telemetry

import (
	"sort"
	"time"
)

// Reading is one timestamped numeric sample.
type Reading struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is an ascending, time-ordered run of readings for one
// (device, field) pair. Series built by Group are never mutated afterwards.
type Series []Reading

// Len returns the number of readings.
func (s Series) Len() int { return len(s) }

// Values returns the sample values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = r.Value
	}
	return out
}

// Latest returns the last reading of the series.
func (s Series) Latest() (Reading, bool) {
	if len(s) == 0 {
		return Reading{}, false
	}
	return s[len(s)-1], true
}

// lowerBound returns the first index whose time is not before t.
func (s Series) lowerBound(t time.Time) int {
	return sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(t) })
}

// Window returns the readings with start <= time <= end. The result shares
// the backing array with s.
func (s Series) Window(start, end time.Time) Series {
	if len(s) == 0 || end.Before(start) {
		return nil
	}
	lo := s.lowerBound(start)
	hi := sort.Search(len(s), func(i int) bool { return s[i].Time.After(end) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi]
}

// Nearest returns the value of the reading closest to t, provided it lies
// within tol of t. Equidistant candidates resolve to the earlier reading.
func (s Series) Nearest(t time.Time, tol time.Duration) (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	i := s.lowerBound(t)
	best := -1
	var bestGap time.Duration
	for _, j := range [2]int{i - 1, i} {
		if j < 0 || j >= len(s) {
			continue
		}
		gap := s[j].Time.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if gap > tol {
			continue
		}
		if best < 0 || gap < bestGap {
			best, bestGap = j, gap
		}
	}
	if best < 0 {
		return 0, false
	}
	return s[best].Value, true
}

// Sorted returns a copy of s ordered by time. Equal timestamps keep their
// input order.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Filter returns the readings for which keep reports true.
func (s Series) Filter(keep func(Reading) bool) Series {
	out := make(Series, 0, len(s))
	for _, r := range s {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
