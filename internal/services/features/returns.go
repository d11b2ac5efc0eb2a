package features

import (
	"sort"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/pkg/util"
)

// Return is one periodic return keyed by the bucket of its closing bar.
type Return struct {
	Key   int64
	Time  time.Time
	Value float64
}

// dedupe keeps the last point per bucket. Providers may append a live bar
// that shares the date of the last settled one.
func dedupe(s *models.HistoricalSeries) []models.Point {
	if s.Len() == 0 {
		return nil
	}
	out := make([]models.Point, 0, len(s.Points))
	var lastKey int64
	for i, p := range s.Points {
		k := util.BucketKey(p.Time, s.Interval)
		if i > 0 && k == lastKey {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
		lastKey = k
	}
	return out
}

// SimpleReturns computes r_t = C_t / C_{t-1} - 1. Pairs with a non-positive
// close are skipped, not zero-filled.
func SimpleReturns(s *models.HistoricalSeries) []Return {
	return returns(s, func(prev, cur float64) float64 { return cur/prev - 1 })
}

func returns(s *models.HistoricalSeries, f func(prev, cur float64) float64) []Return {
	pts := dedupe(s)
	if len(pts) < 2 {
		return nil
	}
	out := make([]Return, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		prev, cur := pts[i-1].Close, pts[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, Return{
			Key:   util.BucketKey(pts[i].Time, s.Interval),
			Time:  pts[i].Time,
			Value: f(prev, cur),
		})
	}
	return out
}

// Values strips keys.
func Values(rs []Return) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Value
	}
	return out
}

// Align truncates two return series to their common buckets, in ascending
// bucket order. Nothing is padded.
func Align(a, b []Return) (x, y []float64) {
	idx := make(map[int64]float64, len(b))
	for _, r := range b {
		idx[r.Key] = r.Value
	}
	for _, r := range a {
		if v, ok := idx[r.Key]; ok {
			x = append(x, r.Value)
			y = append(y, v)
		}
	}
	return x, y
}

// AlignAll intersects every series on their common buckets. It returns the
// shared keys ascending and, per ticker, the values at those keys.
func AlignAll(series map[models.Ticker][]Return) ([]int64, map[models.Ticker][]float64) {
	if len(series) == 0 {
		return nil, nil
	}
	counts := make(map[int64]int)
	for _, rs := range series {
		seen := make(map[int64]struct{}, len(rs))
		for _, r := range rs {
			if _, dup := seen[r.Key]; dup {
				continue
			}
			seen[r.Key] = struct{}{}
			counts[r.Key]++
		}
	}
	keys := make([]int64, 0, len(counts))
	for k, n := range counts {
		if n == len(series) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pos := make(map[int64]int, len(keys))
	for i, k := range keys {
		pos[k] = i
	}
	out := make(map[models.Ticker][]float64, len(series))
	for t, rs := range series {
		vals := make([]float64, len(keys))
		for _, r := range rs {
			if i, ok := pos[r.Key]; ok {
				vals[i] = r.Value
			}
		}
		out[t] = vals
	}
	return keys, out
}

// PeriodsPerYear returns the annualization factor for a bar interval.
func PeriodsPerYear(interval string) float64 {
	switch interval {
	case "1m":
		return 252 * 390
	case "2m":
		return 252 * 195
	case "5m":
		return 252 * 78
	case "15m":
		return 252 * 26
	case "30m":
		return 252 * 13
	case "60m", "1h":
		return 252 * 6.5
	case "90m":
		return 252 * 390.0 / 90
	case "5d", "1wk":
		return 52
	case "1mo":
		return 12
	case "3mo":
		return 4
	default:
		return 252
	}
}
