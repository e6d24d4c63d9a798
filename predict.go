package main

import "time"

const (
	PredictionBufferSize = 128
	PredictionMaxAge     = 2 * time.Second
	ReconcileThreshold   = 2.0 // pixels of positional error before a snap
)

// PredictedInput is one locally-applied input plus the speculative
// state that resulted from it
type PredictedInput struct {
	Sequence   uint32
	Timestamp  time.Time
	DirX, DirY float64
	DT         float64
	X, Y       float64
	VX, VY     float64
}

// Predictor is the client-side prediction and reconciliation engine.
// It integrates inputs locally through the same physics as the server
// for instant feedback, buffers them keyed by sequence number, and on
// an authoritative update snaps-and-replays when the server disagrees
// beyond a threshold. Corrections are silent and local.
type Predictor struct {
	actor         *Spinner
	width, height float64
	pending       []PredictedInput
	nextSeq       uint32
	lastAcked     uint32
}

// NewPredictor wraps the local speculative copy of the player's actor
func NewPredictor(actor *Spinner, width, height float64) *Predictor {
	return &Predictor{actor: actor, width: width, height: height}
}

// Actor returns the speculative local actor
func (p *Predictor) Actor() *Spinner {
	return p.actor
}

// Pending returns the number of unacknowledged buffered inputs
func (p *Predictor) Pending() int {
	return len(p.pending)
}

// ApplyInput assigns the next sequence number, integrates the input
// locally, and buffers it for later reconciliation. Returns the
// sequence number to attach to the outgoing PLAYER_INPUT message.
func (p *Predictor) ApplyInput(dirX, dirY, dt float64, now time.Time) uint32 {
	p.nextSeq++
	p.actor.DirX = dirX
	p.actor.DirY = dirY
	Integrate(p.actor, dt, p.width, p.height)

	p.pending = append(p.pending, PredictedInput{
		Sequence:  p.nextSeq,
		Timestamp: now,
		DirX:      dirX,
		DirY:      dirY,
		DT:        dt,
		X:         p.actor.X,
		Y:         p.actor.Y,
		VX:        p.actor.VX,
		VY:        p.actor.VY,
	})
	if len(p.pending) > PredictionBufferSize {
		p.pending = p.pending[len(p.pending)-PredictionBufferSize:]
	}
	return p.nextSeq
}

// Reconcile processes an authoritative {sequence, position, velocity}
// update. Duplicate or out-of-order updates (sequence at or below the
// last applied ack) are discarded, so replaying an acknowledged
// sequence is a no-op. When the server's position for the acked input
// differs from the speculative one beyond the threshold, local state
// is hard-set and every later unacknowledged input is re-run through
// the integrator.
func (p *Predictor) Reconcile(seq uint32, x, y, vx, vy float64, now time.Time) {
	if seq <= p.lastAcked {
		return
	}
	p.lastAcked = seq

	idx := -1
	for i := range p.pending {
		if p.pending[i].Sequence == seq {
			idx = i
			break
		}
	}

	if idx >= 0 {
		dx := p.pending[idx].X - x
		dy := p.pending[idx].Y - y
		if dx*dx+dy*dy > ReconcileThreshold*ReconcileThreshold {
			p.snapAndReplay(idx, x, y, vx, vy)
		}
		p.pending = p.pending[idx+1:]
	} else {
		// Entry already evicted: keep only inputs newer than the ack
		kept := p.pending[:0]
		for _, e := range p.pending {
			if e.Sequence > seq {
				kept = append(kept, e)
			}
		}
		p.pending = kept
	}

	// Purge entries beyond the age limit regardless of acks
	cut := 0
	for cut < len(p.pending) && now.Sub(p.pending[cut].Timestamp) > PredictionMaxAge {
		cut++
	}
	p.pending = p.pending[cut:]
}

func (p *Predictor) snapAndReplay(ackIdx int, x, y, vx, vy float64) {
	p.actor.X = x
	p.actor.Y = y
	p.actor.VX = vx
	p.actor.VY = vy
	for i := ackIdx + 1; i < len(p.pending); i++ {
		e := &p.pending[i]
		p.actor.DirX = e.DirX
		p.actor.DirY = e.DirY
		Integrate(p.actor, e.DT, p.width, p.height)
		e.X = p.actor.X
		e.Y = p.actor.Y
		e.VX = p.actor.VX
		e.VY = p.actor.VY
	}
}
