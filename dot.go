package main

import "math/rand"

const (
	TargetDotCount = 25
	DotRadius      = 5.0
	DotMinValue    = 1
	DotMaxValue    = 3
	DotEdgeMargin  = 20.0
)

// Dot is a collectible that grows the spinner that eats it
type Dot struct {
	ID     string
	X, Y   float64
	Radius float64
	Value  float64
}

// NewDot spawns a dot at a random position away from the arena edges
func NewDot(width, height float64) *Dot {
	return &Dot{
		ID:     GenerateID(4),
		X:      DotEdgeMargin + rand.Float64()*(width-2*DotEdgeMargin),
		Y:      DotEdgeMargin + rand.Float64()*(height-2*DotEdgeMargin),
		Radius: DotRadius,
		Value:  float64(DotMinValue + rand.Intn(DotMaxValue-DotMinValue+1)),
	}
}

// ToState converts to the protocol tick state
func (d *Dot) ToState() DotTickState {
	return DotTickState{
		ID: d.ID,
		X:  round1(d.X),
		Y:  round1(d.Y),
		R:  d.Radius,
		V:  d.Value,
	}
}
