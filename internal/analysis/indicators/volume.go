package indicators

// VolumeRatio returns current / baseline. It fails when the baseline is not
// positive.
func VolumeRatio(current, baseline float64) (float64, error) {
	if baseline <= 0 {
		return 0, ErrInsufficientData
	}
	return current / baseline, nil
}

// IntervalVolumes converts cumulative session volumes into per-interval
// volumes. A decrease (feed reset) is treated as a fresh cumulative count.
func IntervalVolumes(cumulative []int64) []float64 {
	if len(cumulative) < 2 {
		return nil
	}
	out := make([]float64, 0, len(cumulative)-1)
	for i := 1; i < len(cumulative); i++ {
		d := cumulative[i] - cumulative[i-1]
		if d < 0 {
			d = cumulative[i]
		}
		out = append(out, float64(d))
	}
	return out
}

// IntradayVolumeRatio compares the latest interval volume with the average of
// the earlier intervals of the same session. It needs at least two intervals.
func IntradayVolumeRatio(cumulative []int64) (float64, error) {
	intervals := IntervalVolumes(cumulative)
	if len(intervals) < 2 {
		return 0, ErrInsufficientData
	}
	last := intervals[len(intervals)-1]
	return VolumeRatio(last, mean(intervals[:len(intervals)-1]))
}

// Bias returns the percentage distance of price from its moving average.
func Bias(price, ma float64) (float64, error) {
	if ma == 0 {
		return 0, ErrInsufficientData
	}
	return (price - ma) / ma * 100, nil
}
