package main

import (
	"math"
	"time"
)

const (
	EliminationRatio  = 1.3  // larger/smaller size ratio that eliminates
	AbsorbFraction    = 0.5  // share of the eliminated size the survivor gains
	BounceRestitution = 0.85 // spinner-vs-spinner elastic restitution
)

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 <= radSum*radSum
}

// CollisionEvent describes one overlapping pair. Produced and consumed
// within a single tick, never stored.
type CollisionEvent struct {
	A, B     *Spinner
	Distance float64
	NX, NY   float64 // contact normal, A toward B
}

// DotConsumed reports a spinner eating a dot
type DotConsumed struct {
	PlayerID string
	DotID    string
	Value    float64
}

// Elimination reports a spinner being absorbed by a larger one
type Elimination struct {
	PlayerID string
	ByID     string
}

// TickEvents collects what one resolution pass produced
type TickEvents struct {
	Consumed   []DotConsumed
	Eliminated []Elimination
}

// HitValidator confirms an elimination contact against historical
// state. A nil validator accepts every contact.
type HitValidator interface {
	ValidateHit(attackerID, targetID string, now time.Time) bool
}

// CollisionResolver runs the narrow phase over broad-phase candidates
// and applies the game rules per pair kind: dot consumption,
// size-ratio elimination, elastic bounce.
type CollisionResolver struct {
	grid      *SpatialGrid
	validator HitValidator
	queryBuf  []EntityRef
}

// NewCollisionResolver creates a resolver for a width x height arena
func NewCollisionResolver(width, height float64) *CollisionResolver {
	return &CollisionResolver{grid: NewSpatialGrid(width, height)}
}

// SetValidator installs a rewind-based elimination check
func (cr *CollisionResolver) SetValidator(v HitValidator) {
	cr.validator = v
}

// Resolve rebuilds the grid and resolves all collisions for one tick.
// Spinner state (position, velocity, size, alive) is mutated in place;
// consumed dots are removed from dots.
func (cr *CollisionResolver) Resolve(spinners []*Spinner, dots map[string]*Dot, now time.Time) TickEvents {
	var events TickEvents

	dotList := make([]*Dot, 0, len(dots))
	for _, d := range dots {
		dotList = append(dotList, d)
	}

	cr.grid.Clear()
	for i, s := range spinners {
		if s == nil || !s.Alive {
			continue
		}
		cr.grid.InsertCircle(s.X, s.Y, s.Size, EntityRef{Kind: 's', Idx: i})
	}
	for i, d := range dotList {
		cr.grid.InsertCircle(d.X, d.Y, d.Radius, EntityRef{Kind: 'd', Idx: i})
	}

	seenPairs := make(map[[2]int]bool)

	for i, s := range spinners {
		if s == nil || !s.Alive {
			continue
		}
		cr.queryBuf = cr.grid.QueryBuf(s.X, s.Y, s.Size, cr.queryBuf[:0])
		for _, ref := range cr.queryBuf {
			if !s.Alive {
				break // eliminated by an earlier pair this tick
			}
			switch ref.Kind {
			case 'd':
				d := dotList[ref.Idx]
				if d == nil {
					continue // already eaten this tick
				}
				if !CheckCollision(s.X, s.Y, s.Size, d.X, d.Y, d.Radius) {
					continue
				}
				s.Grow(d.Value)
				delete(dots, d.ID)
				dotList[ref.Idx] = nil
				events.Consumed = append(events.Consumed, DotConsumed{
					PlayerID: s.ID,
					DotID:    d.ID,
					Value:    d.Value,
				})
			case 's':
				if ref.Idx == i {
					continue
				}
				pair := [2]int{i, ref.Idx}
				if pair[0] > pair[1] {
					pair[0], pair[1] = pair[1], pair[0]
				}
				if seenPairs[pair] {
					continue
				}
				seenPairs[pair] = true

				o := spinners[ref.Idx]
				if o == nil || !o.Alive || !s.Alive {
					continue
				}
				if !CheckCollision(s.X, s.Y, s.Size, o.X, o.Y, o.Size) {
					continue
				}
				if e := cr.resolveSpinnerPair(s, o, now); e != nil {
					events.Eliminated = append(events.Eliminated, *e)
				}
			}
		}
	}
	return events
}

// resolveSpinnerPair applies the actor-vs-actor rule to an overlapping
// pair: a size ratio at or above EliminationRatio absorbs the smaller
// spinner, anything closer in size bounces elastically. Returns the
// elimination if one happened.
func (cr *CollisionResolver) resolveSpinnerPair(a, b *Spinner, now time.Time) *Elimination {
	larger, smaller := a, b
	if smaller.Size > larger.Size {
		larger, smaller = smaller, larger
	}

	if larger.Size >= smaller.Size*EliminationRatio {
		if cr.validator == nil || cr.validator.ValidateHit(larger.ID, smaller.ID, now) {
			smaller.Alive = false
			larger.Grow(AbsorbFraction * smaller.Size)
			return &Elimination{PlayerID: smaller.ID, ByID: larger.ID}
		}
		// Unverifiable under rewind: fall through to a bounce rather
		// than eliminating on stale data.
	}

	ev := contactEvent(a, b)
	separate(a, b, ev)
	applyImpulse(a, b, ev)
	return nil
}

func contactEvent(a, b *Spinner) CollisionEvent {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dist := math.Sqrt(dx*dx + dy*dy)
	nx, ny := 1.0, 0.0
	if dist > 1e-9 {
		nx = dx / dist
		ny = dy / dist
	}
	return CollisionEvent{A: a, B: b, Distance: dist, NX: nx, NY: ny}
}

// separate pushes the pair apart along the contact normal proportional
// to overlap, weighted so the lighter spinner moves more
func separate(a, b *Spinner, ev CollisionEvent) {
	overlap := a.Size + b.Size - ev.Distance
	if overlap <= 0 {
		return
	}
	total := a.Size + b.Size
	a.X -= ev.NX * overlap * (b.Size / total)
	a.Y -= ev.NY * overlap * (b.Size / total)
	b.X += ev.NX * overlap * (a.Size / total)
	b.Y += ev.NY * overlap * (a.Size / total)
}

// applyImpulse applies an elastic impulse from the relative velocity
// along the contact normal, with mass = size
func applyImpulse(a, b *Spinner, ev CollisionEvent) {
	rvx := b.VX - a.VX
	rvy := b.VY - a.VY
	vn := rvx*ev.NX + rvy*ev.NY
	if vn > 0 {
		return // already separating
	}
	j := -(1 + BounceRestitution) * vn / (1/a.Size + 1/b.Size)
	a.VX -= j * ev.NX / a.Size
	a.VY -= j * ev.NY / a.Size
	b.VX += j * ev.NX / b.Size
	b.VY += j * ev.NY / b.Size
}
