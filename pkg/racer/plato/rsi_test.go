package plato

import "testing"

func TestRSIReturns50DuringWarmup(t *testing.T) {
	r := NewRSI(5)
	for i := 0; i < 4; i++ {
		r.Next(float64(i))
		if v := r.Value(); v != 50 {
			t.Fatalf("expected 50 during warmup, got %v at step %d", v, i)
		}
	}
}

func TestRSIReturns100WhenAllChangesNonNegative(t *testing.T) {
	r := NewRSI(3)
	samples := []float64{1, 2, 3, 4, 5}
	for _, s := range samples {
		r.Next(s)
	}
	if !r.Ready() {
		t.Fatal("expected estimator to be warm")
	}
	if v := r.Value(); v != 100 {
		t.Fatalf("expected RSI 100 for all-increasing series, got %v", v)
	}
}

func TestRSIClampedToBounds(t *testing.T) {
	r := NewRSI(3)
	samples := []float64{10, 1, 10, 1, 10, 1, 10}
	for _, s := range samples {
		r.Next(s)
		v := r.Value()
		if v < 0 || v > 100 {
			t.Fatalf("RSI out of bounds: %v", v)
		}
	}
}
