package plato

// sgCoefficients holds the standard published quadratic symmetric
// Savitzky-Golay coefficient tables (smoothing-only, normalised by
// {3,35,21,231,429} respectively) for each supported odd window size.
var sgCoefficients map[int][]float64

func init() {
	sgCoefficients = map[int][]float64{
		3:  scale([]float64{1, 1, 1}, 3),
		5:  scale([]float64{-3, 12, 17, 12, -3}, 35),
		7:  scale([]float64{-2, 3, 6, 7, 6, 3, -2}, 21),
		9:  scale([]float64{-21, 14, 39, 54, 59, 54, 39, 14, -21}, 231),
		11: scale([]float64{-36, 9, 44, 69, 84, 89, 84, 69, 44, 9, -36}, 429),
	}
}

func scale(coeffs []float64, divisor float64) []float64 {
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = c / divisor
	}
	return out
}

// SavitzkyGolay smooths a stream of samples with a fixed odd window. A
// window size outside {3,5,7,9,11} falls back to a simple moving
// average of the same length. NewSavitzkyGolay forces the window size
// odd by rounding an even size up by one.
type SavitzkyGolay struct {
	window int
	coeffs []float64 // nil => simple moving average fallback
	buf    []float64
}

// NewSavitzkyGolay builds a smoother for the given window size.
func NewSavitzkyGolay(window int) *SavitzkyGolay {
	if window%2 == 0 {
		window++
	}
	if window < 1 {
		window = 1
	}
	return &SavitzkyGolay{
		window: window,
		coeffs: sgCoefficients[window],
		buf:    make([]float64, 0, window),
	}
}

// Next appends a sample to the smoother's buffer.
func (s *SavitzkyGolay) Next(x float64) {
	s.buf = append(s.buf, x)
	if len(s.buf) > s.window {
		s.buf = s.buf[len(s.buf)-s.window:]
	}
}

// Value returns the arithmetic mean of the buffered samples while the
// buffer is not yet full; once full, the weighted Savitzky-Golay
// estimate (or the moving average for unsupported window sizes).
func (s *SavitzkyGolay) Value() float64 {
	if len(s.buf) == 0 {
		return 0
	}
	if len(s.buf) < s.window {
		return mean(s.buf)
	}
	if s.coeffs == nil {
		return mean(s.buf)
	}
	sum := 0.0
	for i, c := range s.coeffs {
		sum += c * s.buf[i]
	}
	return sum
}

// Ready reports whether the buffer has reached the configured window
// size, i.e. Value() is returning the smoothed estimate rather than a
// plain mean of a partial buffer.
func (s *SavitzkyGolay) Ready() bool {
	return len(s.buf) >= s.window
}
