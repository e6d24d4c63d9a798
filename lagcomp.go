package main

import "time"

const (
	SnapshotCapacity  = 120 // 2s of history at 60Hz
	SnapshotRetention = time.Second
	LatencySamples    = 20
	DefaultLatency    = 100 * time.Millisecond
	MaxLatency        = 500 * time.Millisecond
	MinInputDelay     = 16 * time.Millisecond
	MaxInputDelay     = 250 * time.Millisecond
)

// ActorSample is one spinner's state inside a snapshot
type ActorSample struct {
	PlayerID string
	X, Y     float64
	VX, VY   float64
	Size     float64
	Alive    bool
}

// WorldSnapshot is an immutable record of all actors at one instant
type WorldSnapshot struct {
	Timestamp time.Time
	Actors    []ActorSample
}

// InputSample pairs a client send time with the server receive time
type InputSample struct {
	ClientTime time.Time
	ServerTime time.Time
}

// LagCompensator keeps a ring buffer of world snapshots plus
// per-player input timing samples, and rewinds to validate hits at the
// instant the attacker actually saw. All methods run on the owning
// room's tick goroutine; no locking needed.
type LagCompensator struct {
	snapshots [SnapshotCapacity]WorldSnapshot
	head      int // next write position
	count     int
	inputs    map[string][]InputSample
}

// NewLagCompensator creates an empty compensator
func NewLagCompensator() *LagCompensator {
	return &LagCompensator{inputs: make(map[string][]InputSample)}
}

// RecordSnapshot stores a snapshot, evicting the oldest when full
func (lc *LagCompensator) RecordSnapshot(snap WorldSnapshot) {
	lc.snapshots[lc.head] = snap
	lc.head = (lc.head + 1) % SnapshotCapacity
	if lc.count < SnapshotCapacity {
		lc.count++
	}
}

// SnapshotNear returns the stored snapshot whose timestamp is closest
// to t, or false when none is within the retention window
func (lc *LagCompensator) SnapshotNear(t time.Time) (*WorldSnapshot, bool) {
	var best *WorldSnapshot
	var bestDelta time.Duration
	for i := 0; i < lc.count; i++ {
		idx := (lc.head - 1 - i + SnapshotCapacity) % SnapshotCapacity
		snap := &lc.snapshots[idx]
		delta := snap.Timestamp.Sub(t)
		if delta < 0 {
			delta = -delta
		}
		if best == nil || delta < bestDelta {
			best = snap
			bestDelta = delta
		}
	}
	if best == nil || bestDelta > SnapshotRetention {
		return nil, false
	}
	return best, true
}

func (snap *WorldSnapshot) actor(playerID string) (ActorSample, bool) {
	for _, a := range snap.Actors {
		if a.PlayerID == playerID {
			return a, true
		}
	}
	return ActorSample{}, false
}

// ValidateHit rewinds to clientTime minus the attacker's estimated
// latency and accepts the hit only if both actors were alive and
// overlapping at that instant. A missing or too-old snapshot means
// hit-invalid, not an error.
func (lc *LagCompensator) ValidateHit(attackerID, targetID string, clientTime time.Time, latency time.Duration) bool {
	rewindTime := clientTime.Add(-latency)
	snap, ok := lc.SnapshotNear(rewindTime)
	if !ok {
		return false
	}
	attacker, ok := snap.actor(attackerID)
	if !ok || !attacker.Alive {
		return false
	}
	target, ok := snap.actor(targetID)
	if !ok || !target.Alive {
		return false
	}
	return Distance(attacker.X, attacker.Y, target.X, target.Y) <= attacker.Size+target.Size
}

// RecordInput stores one input timing sample for a player, keeping
// only the most recent LatencySamples
func (lc *LagCompensator) RecordInput(playerID string, clientTime, serverTime time.Time) {
	samples := append(lc.inputs[playerID], InputSample{ClientTime: clientTime, ServerTime: serverTime})
	if len(samples) > LatencySamples {
		samples = samples[len(samples)-LatencySamples:]
	}
	lc.inputs[playerID] = samples
}

// EstimateLatency averages serverReceive minus clientSend over the
// recorded samples, clamped to a sane range. Returns DefaultLatency
// when no samples exist.
func (lc *LagCompensator) EstimateLatency(playerID string) time.Duration {
	samples := lc.inputs[playerID]
	if len(samples) == 0 {
		return DefaultLatency
	}
	var total time.Duration
	for _, s := range samples {
		total += s.ServerTime.Sub(s.ClientTime)
	}
	avg := total / time.Duration(len(samples))
	if avg < 0 {
		avg = 0
	}
	if avg > MaxLatency {
		avg = MaxLatency
	}
	return avg
}

// OptimalInputDelay blends the max and mean estimated latency across
// all players into a suggested client input-buffering delay
func (lc *LagCompensator) OptimalInputDelay() time.Duration {
	if len(lc.inputs) == 0 {
		return MinInputDelay
	}
	var total, max time.Duration
	n := 0
	for playerID := range lc.inputs {
		lat := lc.EstimateLatency(playerID)
		total += lat
		if lat > max {
			max = lat
		}
		n++
	}
	mean := total / time.Duration(n)
	delay := (mean + max) / 2
	if delay < MinInputDelay {
		delay = MinInputDelay
	}
	if delay > MaxInputDelay {
		delay = MaxInputDelay
	}
	return delay
}
