package main

import (
	"sync"
	"testing"
)

func TestNewDotBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := NewDot(ArenaWidth, ArenaHeight)
		if d.X < DotEdgeMargin || d.X > ArenaWidth-DotEdgeMargin {
			t.Fatalf("dot X=%f outside margin", d.X)
		}
		if d.Y < DotEdgeMargin || d.Y > ArenaHeight-DotEdgeMargin {
			t.Fatalf("dot Y=%f outside margin", d.Y)
		}
		if d.Value < DotMinValue || d.Value > DotMaxValue {
			t.Fatalf("dot value %f outside [%d, %d]", d.Value, DotMinValue, DotMaxValue)
		}
		if d.Radius != DotRadius {
			t.Fatalf("dot radius %f, want %f", d.Radius, DotRadius)
		}
	}
}

// Dots spawn from every room's tick goroutine concurrently; generation
// must be safe under the race detector.
func TestNewDotConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				d := NewDot(ArenaWidth, ArenaHeight)
				if d.Value < DotMinValue || d.Value > DotMaxValue {
					t.Errorf("dot value %f out of range", d.Value)
					return
				}
			}
		}()
	}
	wg.Wait()
}
