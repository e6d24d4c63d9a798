package main

const (
	InitialSpinnerSize = 15.0
	ArenaWidth         = 800.0
	ArenaHeight        = 600.0
)

// Spinner is a player-controlled growing circular actor. Size doubles
// as collision radius and score.
type Spinner struct {
	ID     string
	X, Y   float64
	VX, VY float64
	// Target direction (unit vector intent; normalized on integration)
	DirX, DirY float64
	Size       float64
	Spin       float64 // visual spin phase, radians in [0, 2π)
	Alive      bool
}

// NewSpinner creates a spinner at the given position with initial size
func NewSpinner(id string, x, y float64) *Spinner {
	return &Spinner{
		ID:    id,
		X:     x,
		Y:     y,
		Size:  InitialSpinnerSize,
		Alive: true,
	}
}

// Reset returns the spinner to its initial state at (x, y). This is
// the only place size may decrease.
func (s *Spinner) Reset(x, y float64) {
	s.X = x
	s.Y = y
	s.VX = 0
	s.VY = 0
	s.DirX = 0
	s.DirY = 0
	s.Size = InitialSpinnerSize
	s.Spin = 0
	s.Alive = true
}

// Grow increases the spinner's size by v
func (s *Spinner) Grow(v float64) {
	s.Size += v
}

// ToState converts to the protocol tick state
func (s *Spinner) ToState(seq uint32) SpinnerTickState {
	return SpinnerTickState{
		ID:    s.ID,
		X:     round1(s.X),
		Y:     round1(s.Y),
		VX:    round1(s.VX),
		VY:    round1(s.VY),
		Size:  round1(s.Size),
		Spin:  round1(s.Spin),
		Alive: s.Alive,
		Seq:   seq,
	}
}
