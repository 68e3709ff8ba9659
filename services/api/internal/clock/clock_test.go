package clock

import (
	"testing"
	"time"
)

func TestFixed_ReturnsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)

	got := NewFixed(in).Now()
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if !got.Equal(in) {
		t.Fatalf("expected %v, got %v", in, got)
	}
}

func TestManual_AdvanceIsMonotonic(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	clk.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !clk.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, clk.Now())
	}

	clk.Advance(-time.Hour)
	if want := start.Add(90 * time.Second); !clk.Now().Equal(want) {
		t.Fatalf("expected negative advance to be ignored, got %v", clk.Now())
	}
}
