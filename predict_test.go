package main

import (
	"testing"
	"time"
)

const tickDT = 1.0 / 60.0

func newTestPredictor() *Predictor {
	actor := NewSpinner("local", 400, 300)
	return NewPredictor(actor, ArenaWidth, ArenaHeight)
}

func TestPredictorAssignsIncreasingSequences(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	s1 := p.ApplyInput(1, 0, tickDT, now)
	s2 := p.ApplyInput(1, 0, tickDT, now)
	s3 := p.ApplyInput(0, 1, tickDT, now)

	if s1 != 1 || s2 != 2 || s3 != 3 {
		t.Errorf("expected sequences 1,2,3 got %d,%d,%d", s1, s2, s3)
	}
	if p.Pending() != 3 {
		t.Errorf("expected 3 pending inputs, got %d", p.Pending())
	}
}

func TestPredictorLocalIntegration(t *testing.T) {
	p := newTestPredictor()
	startX := p.Actor().X

	p.ApplyInput(1, 0, tickDT, time.Now())

	if p.Actor().X <= startX {
		t.Error("local input should move the speculative actor immediately")
	}
}

func TestPredictorReconcileAgreement(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	p.ApplyInput(1, 0, tickDT, now)
	a := p.Actor()
	x, y, vx, vy := a.X, a.Y, a.VX, a.VY

	// Server agrees exactly: no snap, entry dropped
	p.Reconcile(1, x, y, vx, vy, now)

	if p.Pending() != 0 {
		t.Errorf("acked entry should be dropped, %d pending", p.Pending())
	}
	if a.X != x || a.Y != y {
		t.Error("agreeing ack must not move the actor")
	}
}

func TestPredictorReconcileSnapAndReplay(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	p.ApplyInput(1, 0, tickDT, now)
	p.ApplyInput(1, 0, tickDT, now)
	p.ApplyInput(1, 0, tickDT, now)

	// Server disagrees far beyond the threshold for input 1
	p.Reconcile(1, 200, 200, 0, 0, now)

	if p.Pending() != 2 {
		t.Errorf("expected 2 unacked inputs after snap, got %d", p.Pending())
	}

	// The replayed state starts from the server's base, so the actor
	// must be near (200,200) plus two ticks of movement, nowhere near
	// the original speculative position around (400,300).
	a := p.Actor()
	if Distance(a.X, a.Y, 200, 200) > 50 {
		t.Errorf("actor not replayed from server base: at (%f,%f)", a.X, a.Y)
	}
}

func TestPredictorReconcileIdempotent(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	p.ApplyInput(1, 0, tickDT, now)
	p.ApplyInput(1, 0, tickDT, now)

	p.Reconcile(1, 200, 200, 0, 0, now)
	a := p.Actor()
	x, y, vx, vy := a.X, a.Y, a.VX, a.VY
	pending := p.Pending()

	// Replaying an already-acknowledged sequence must change nothing,
	// even with a different claimed position.
	p.Reconcile(1, 500, 500, 99, 99, now)

	if a.X != x || a.Y != y || a.VX != vx || a.VY != vy {
		t.Error("duplicate ack must not change state")
	}
	if p.Pending() != pending {
		t.Error("duplicate ack must not drop inputs")
	}
}

func TestPredictorReconcileOutOfOrder(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	for i := 0; i < 5; i++ {
		p.ApplyInput(1, 0, tickDT, now)
	}

	p.Reconcile(4, p.Actor().X, p.Actor().Y, p.Actor().VX, p.Actor().VY, now)
	if p.Pending() != 1 {
		t.Fatalf("expected 1 pending after ack 4, got %d", p.Pending())
	}

	// A stale ack for sequence 2 arrives late: discarded
	p.Reconcile(2, 0, 0, 0, 0, now)
	if p.Pending() != 1 {
		t.Error("stale ack must be discarded")
	}
}

func TestPredictorAgePurge(t *testing.T) {
	p := newTestPredictor()
	old := time.Now().Add(-2 * PredictionMaxAge)

	p.ApplyInput(1, 0, tickDT, old)
	p.ApplyInput(1, 0, tickDT, old)
	p.ApplyInput(1, 0, tickDT, time.Now())

	// Any reconcile also purges entries beyond the age limit
	p.Reconcile(1, p.Actor().X, p.Actor().Y, 0, 0, time.Now())

	if p.Pending() != 1 {
		t.Errorf("expected only the fresh entry to survive, got %d", p.Pending())
	}
}

func TestPredictorBufferBounded(t *testing.T) {
	p := newTestPredictor()
	now := time.Now()

	for i := 0; i < PredictionBufferSize*2; i++ {
		p.ApplyInput(1, 0, tickDT, now)
	}

	if p.Pending() > PredictionBufferSize {
		t.Errorf("pending %d exceeds buffer bound %d", p.Pending(), PredictionBufferSize)
	}
}
