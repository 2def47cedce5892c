package plato

import "testing"

func TestSavitzkyGolayReturnsMeanBeforeFull(t *testing.T) {
	sg := NewSavitzkyGolay(5)
	sg.Next(2)
	sg.Next(4)
	if got, want := sg.Value(), 3.0; got != want {
		t.Fatalf("expected mean %v before buffer full, got %v", want, got)
	}
}

func TestSavitzkyGolayUsesCoefficientsOnceFull(t *testing.T) {
	sg := NewSavitzkyGolay(3)
	sg.Next(1)
	sg.Next(1)
	sg.Next(1)
	if got := sg.Value(); got != 1 {
		t.Fatalf("expected constant series to smooth to 1, got %v", got)
	}
	if !sg.Ready() {
		t.Fatal("expected smoother to report ready once buffer is full")
	}
}

func TestSavitzkyGolayForcesOddWindow(t *testing.T) {
	sg := NewSavitzkyGolay(4)
	for i := 0; i < 5; i++ {
		sg.Next(float64(i))
	}
	if !sg.Ready() {
		t.Fatal("expected smoother to become ready with forced odd window")
	}
}

func TestSavitzkyGolayUnsupportedWindowFallsBackToMovingAverage(t *testing.T) {
	sg := NewSavitzkyGolay(13)
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	for _, v := range vals {
		sg.Next(v)
	}
	want := mean(vals)
	if got := sg.Value(); got != want {
		t.Fatalf("expected moving-average fallback %v, got %v", want, got)
	}
}
