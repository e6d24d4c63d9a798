package main

import "math"

const (
	SpinnerAccel     = 400.0 // pixels/s²
	SpinnerDamping   = 0.98  // velocity multiplier per tick
	SpinnerBaseSpeed = 250.0 // pixels/s at initial size
	SpinnerSpinRate  = 10.0  // radians/s visual spin
	WallRestitution  = 0.8

	// Speed penalty for grown spinners: linear falloff above the
	// initial size, floored at 0.3x.
	SpeedPenaltyScale = 100.0
	SpeedPenaltyFloor = 0.3
)

// MaxSpeedFor returns the speed cap for a spinner of the given size
func MaxSpeedFor(size float64) float64 {
	penalty := 1.0 - (size-InitialSpinnerSize)/SpeedPenaltyScale
	penalty = Clamp(penalty, SpeedPenaltyFloor, 1.0)
	return SpinnerBaseSpeed * penalty
}

// Integrate advances one spinner by dt seconds: accelerate toward the
// target direction, damp, clamp to the size-penalized max speed, move,
// bounce off arena walls, advance spin phase. The same integrator runs
// on the server tick and inside the client predictor, so speculative
// and authoritative trajectories only diverge on collisions.
func Integrate(s *Spinner, dt, width, height float64) {
	if !s.Alive {
		return
	}

	mag := math.Hypot(s.DirX, s.DirY)
	if mag > 1e-9 {
		s.VX += s.DirX / mag * SpinnerAccel * dt
		s.VY += s.DirY / mag * SpinnerAccel * dt
	}

	s.VX *= SpinnerDamping
	s.VY *= SpinnerDamping

	maxSpd := MaxSpeedFor(s.Size)
	speed := math.Hypot(s.VX, s.VY)
	if speed > maxSpd {
		scale := maxSpd / speed
		s.VX *= scale
		s.VY *= scale
	}

	s.X += s.VX * dt
	s.Y += s.VY * dt

	// Wall bounce: reflect the velocity component along the contacted
	// axis scaled by restitution, clamp position inward. Spinners
	// never leave the arena.
	r := s.Size
	if s.X < r {
		s.X = r
		if s.VX < 0 {
			s.VX = -s.VX * WallRestitution
		}
	} else if s.X > width-r {
		s.X = width - r
		if s.VX > 0 {
			s.VX = -s.VX * WallRestitution
		}
	}
	if s.Y < r {
		s.Y = r
		if s.VY < 0 {
			s.VY = -s.VY * WallRestitution
		}
	} else if s.Y > height-r {
		s.Y = height - r
		if s.VY > 0 {
			s.VY = -s.VY * WallRestitution
		}
	}

	s.Spin += SpinnerSpinRate * dt
	for s.Spin >= 2*math.Pi {
		s.Spin -= 2 * math.Pi
	}
}
