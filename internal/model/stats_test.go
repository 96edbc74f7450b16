package model

import "testing"

func TestComputeStatsSingleSample(t *testing.T) {
	stats := ComputeStats([]float64{42.5})

	if stats.Min != 42.5 || stats.Median != 42.5 || stats.Max != 42.5 || stats.Average != 42.5 {
		t.Fatalf("single sample should collapse min=median=max=avg, got %+v", stats)
	}
	if stats.StdDev != 0 {
		t.Fatalf("single sample should have stddev 0, got %f", stats.StdDev)
	}
	if stats.First != 42.5 {
		t.Fatalf("first should equal the only sample, got %f", stats.First)
	}
}

func TestComputeStatsOrdering(t *testing.T) {
	stats := ComputeStats([]float64{10, 30, 20, 40, 5})

	if !(stats.Min <= stats.Median && stats.Median <= stats.Max) {
		t.Fatalf("expected min <= median <= max, got %+v", stats)
	}
	if stats.Average < stats.Min {
		t.Fatalf("expected average >= min, got %+v", stats)
	}
	if stats.StdDev < 0 {
		t.Fatalf("stddev must be non-negative, got %f", stats.StdDev)
	}
	if stats.First != 10 {
		t.Fatalf("first should be the first sample in input order, got %f", stats.First)
	}
}

func TestComputeStatsStdDevZeroIffEqual(t *testing.T) {
	equal := ComputeStats([]float64{7, 7, 7, 7})
	if equal.StdDev != 0 {
		t.Fatalf("all-equal samples should have stddev 0, got %f", equal.StdDev)
	}

	unequal := ComputeStats([]float64{7, 7, 7, 8})
	if unequal.StdDev == 0 {
		t.Fatal("unequal samples should have non-zero stddev")
	}
}

func TestComputeStatsPanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty sample slice")
		}
	}()
	ComputeStats(nil)
}

func TestMeasurementStatsIsZero(t *testing.T) {
	var s MeasurementStats
	if !s.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	s.First = 1
	if s.IsZero() {
		t.Fatal("non-zero value should not report IsZero")
	}
}
