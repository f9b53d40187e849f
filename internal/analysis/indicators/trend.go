package indicators

import (
	"daily-stock-analysis/internal/models"
)

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(values) < period {
		return 0, ErrInsufficientData
	}
	return mean(values[len(values)-period:]), nil
}

// EMASeries calculates the exponential moving average of every prefix of
// values. The series is seeded with the first value, so it has the same
// length as the input.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result
}

// MACD holds the MACD periods.
type MACD struct {
	Fast   int
	Slow   int
	Signal int
}

// DefaultMACD returns the classic 12/26/9 configuration.
func DefaultMACD() MACD {
	return MACD{Fast: 12, Slow: 26, Signal: 9}
}

// Histogram returns MACD line minus signal line for every sample.
func (m MACD) Histogram(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	fast := EMASeries(values, m.Fast)
	slow := EMASeries(values, m.Slow)

	// MACD Line = Fast EMA - Slow EMA
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fast[i] - slow[i]
	}

	// Signal Line = EMA of MACD Line
	signal := EMASeries(line, m.Signal)

	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signal[i]
	}
	return hist
}

// Cross classifies the latest sample: golden when the MACD line moved from
// below its signal line to above it, dead for the opposite move.
// Fewer than two samples never cross.
func (m MACD) Cross(values []float64) models.MACDState {
	if len(values) < 2 {
		return models.MACDNone
	}
	hist := m.Histogram(values)
	return MACDCross(hist[len(hist)-2], hist[len(hist)-1])
}

// MACDCross classifies the sign change between two consecutive histogram values.
func MACDCross(prev, cur float64) models.MACDState {
	switch {
	case prev < 0 && cur > 0:
		return models.MACDGoldenCross
	case prev > 0 && cur < 0:
		return models.MACDDeadCross
	default:
		return models.MACDNone
	}
}
