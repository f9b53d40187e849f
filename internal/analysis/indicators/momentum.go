package indicators

// RSI calculates the Relative Strength Index of the last period price
// changes using simple averages of gains and losses. It needs period+1
// values. A window of only gains is 100 and a flat window is 50.
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(values) < period+1 {
		return 0, ErrInsufficientData
	}

	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	rs := avgGain / avgLoss
	return clamp(100-(100/(1+rs)), 0, 100), nil
}
