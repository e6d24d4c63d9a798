package main

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate     = 60 // simulation ticks per second
	TickDuration = time.Second / TickRate

	MaxPlayersPerRoom = 4
	InputQueueSize    = 256
	SpawnRetries      = 16
	MinPlayersToStart = 2
)

var (
	ErrRoomFull         = errors.New("room is full")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
)

// Phase is the room lifecycle state
type Phase int

const (
	PhaseLobby Phase = iota
	PhasePlaying
	PhaseOver
)

func (p Phase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	case PhaseOver:
		return "over"
	default:
		return "lobby"
	}
}

// Player is one room member. The spinner it owns is the single
// authoritative actor record; everything sent outward is a projection.
type Player struct {
	ID           string
	Name         string
	IsHost       bool
	AuthID       int64 // 0 = guest
	Eliminations int
	PeakSize     float64
	Spinner      *Spinner
}

// IsAlive reports whether the player's actor is alive
func (p *Player) IsAlive() bool {
	return p.Spinner != nil && p.Spinner.Alive
}

// View builds the read-only outward projection
func (p *Player) View() PlayerView {
	v := PlayerView{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
	if p.Spinner != nil {
		v.IsAlive = p.Spinner.Alive
		v.Size = round1(p.Spinner.Size)
		v.Score = int(math.Round(p.Spinner.Size))
	}
	return v
}

// InputEvent is one queued, sequenced direction input
type InputEvent struct {
	PlayerID   string
	Sequence   uint32
	ClientTime time.Time
	ServerTime time.Time
	DirX, DirY float64
}

// Broadcaster delivers messages to one client. Sends must never block
// the tick loop.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Room owns one arena's authoritative world: the ordered player table
// (join order drives host succession), the dot set, the fixed-tick
// loop, and the lag-compensation history. Input arriving mid-tick is
// queued and becomes visible only at the next tick's start.
type Room struct {
	mu      sync.RWMutex
	Code    string
	players []*Player
	clients map[string]Broadcaster
	dots    map[string]*Dot
	phase   Phase
	elapsed float64
	tick    uint64

	inputs  chan InputEvent
	stop    chan struct{}
	running bool

	resolver *CollisionResolver
	rewind   *LagCompensator
	lastSeq  map[string]uint32

	db      *DB
	onEmpty func(code string)
}

// NewRoom creates an empty lobby-phase room
func NewRoom(code string, db *DB) *Room {
	r := &Room{
		Code:    code,
		clients: make(map[string]Broadcaster),
		dots:    make(map[string]*Dot),
		inputs:  make(chan InputEvent, InputQueueSize),
		rewind:  NewLagCompensator(),
		lastSeq: make(map[string]uint32),
		db:      db,
	}
	r.resolver = NewCollisionResolver(ArenaWidth, ArenaHeight)
	r.resolver.SetValidator(r)
	return r
}

// Join adds a player. Rejected when the room is full or a game is in
// progress. The first player becomes host.
func (r *Room) Join(name string, authID int64) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhasePlaying {
		return nil, ErrGameInProgress
	}
	if len(r.players) >= MaxPlayersPerRoom {
		return nil, ErrRoomFull
	}

	p := &Player{
		ID:     uuid.NewString(),
		Name:   name,
		IsHost: len(r.players) == 0,
		AuthID: authID,
	}
	p.Spinner = NewSpinner(p.ID, ArenaWidth/2, ArenaHeight/2)
	p.PeakSize = p.Spinner.Size
	r.players = append(r.players, p)
	return p, nil
}

// broadcastJoin announces a newcomer and the refreshed room state to
// the members already registered
func (r *Room) broadcastJoin(p *Player) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.broadcastJSONLocked(Envelope{T: MsgPlayerJoined, Data: PlayerJoinedMsg{Player: p.View()}})
	r.broadcastJSONLocked(Envelope{T: MsgRoomState, Data: r.roomStateLocked()})
}

// SetClient associates a broadcaster with a player
func (r *Room) SetClient(playerID string, b Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[playerID] = b
}

// Leave removes a player. Idempotent: removing an unknown player is a
// no-op. Host role passes to the earliest-joined remainder; the last
// player leaving stops the loop and releases the room.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()

	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}

	wasHost := r.players[idx].IsHost
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.clients, playerID)
	delete(r.lastSeq, playerID)

	if wasHost && len(r.players) > 0 {
		r.players[0].IsHost = true
	}

	empty := len(r.players) == 0
	if empty {
		r.stopLoopLocked()
		r.mu.Unlock()
		if r.onEmpty != nil {
			r.onEmpty(r.Code)
		}
		return
	}

	r.broadcastJSONLocked(Envelope{T: MsgPlayerLeft, Data: PlayerLeftMsg{PlayerID: playerID}})
	r.broadcastJSONLocked(Envelope{T: MsgRoomState, Data: r.roomStateLocked()})

	// A departure mid-game can decide the match
	if r.phase == PhasePlaying && r.aliveCountLocked() <= 1 {
		r.finishLocked()
	}
	r.mu.Unlock()
}

// Start begins a match. Only the host may start, at least two players
// must be present, and no game may already be running. Valid from both
// the lobby and the over phase (rematch).
func (r *Room) Start(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhasePlaying {
		return ErrGameInProgress
	}
	var requester *Player
	for _, p := range r.players {
		if p.ID == requesterID {
			requester = p
			break
		}
	}
	if requester == nil {
		return ErrPlayerNotFound
	}
	if !requester.IsHost {
		return ErrNotHost
	}
	if len(r.players) < MinPlayersToStart {
		return ErrNotEnoughPlayers
	}

	for _, p := range r.players {
		p.Spinner.Reset(0, 0)
		p.Eliminations = 0
		p.PeakSize = p.Spinner.Size
	}
	r.spawnLayoutLocked()

	r.dots = make(map[string]*Dot, TargetDotCount)
	for len(r.dots) < TargetDotCount {
		d := NewDot(ArenaWidth, ArenaHeight)
		r.dots[d.ID] = d
	}

	r.phase = PhasePlaying
	r.elapsed = 0
	r.tick = 0
	r.rewind = NewLagCompensator()
	r.lastSeq = make(map[string]uint32)
	r.drainInputsLocked()

	r.running = true
	r.stop = make(chan struct{})
	go r.run(r.stop)

	r.broadcastJSONLocked(Envelope{T: MsgGameStarted})
	r.broadcastJSONLocked(Envelope{T: MsgRoomState, Data: r.roomStateLocked()})
	return nil
}

// spawnLayoutLocked places actors collision-free: a deterministic ring
// first, bounded randomized retries if that somehow overlaps, then an
// unchecked fallback.
func (r *Room) spawnLayoutLocked() {
	n := len(r.players)
	cx, cy := ArenaWidth/2.0, ArenaHeight/2.0
	ringR := math.Min(ArenaWidth, ArenaHeight)/2 - 4*InitialSpinnerSize

	for i, p := range r.players {
		angle := 2 * math.Pi * float64(i) / float64(n)
		p.Spinner.X = cx + math.Cos(angle)*ringR
		p.Spinner.Y = cy + math.Sin(angle)*ringR
	}
	if r.spawnOverlapFreeLocked() {
		return
	}
	for try := 0; try < SpawnRetries; try++ {
		for _, p := range r.players {
			p.Spinner.X = 2*InitialSpinnerSize + rand.Float64()*(ArenaWidth-4*InitialSpinnerSize)
			p.Spinner.Y = 2*InitialSpinnerSize + rand.Float64()*(ArenaHeight-4*InitialSpinnerSize)
		}
		if r.spawnOverlapFreeLocked() {
			return
		}
	}
	// Fallback: accept whatever the last retry produced
}

func (r *Room) spawnOverlapFreeLocked() bool {
	for i := 0; i < len(r.players); i++ {
		for j := i + 1; j < len(r.players); j++ {
			a, b := r.players[i].Spinner, r.players[j].Spinner
			if CheckCollision(a.X, a.Y, a.Size, b.X, b.Y, b.Size) {
				return false
			}
		}
	}
	return true
}

// HandleInput queues an input for application at the next tick start.
// Never blocks; under pressure the newest input is dropped (the client
// resends direction continuously).
func (r *Room) HandleInput(ev InputEvent) {
	select {
	case r.inputs <- ev:
	default:
	}
}

// PlayerCount returns the number of players in the room
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Phase returns the current room phase
func (r *Room) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Players returns outward projections of the player table, in join order
func (r *Room) Players() []PlayerView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playerViewsLocked()
}

// RoomState returns the lobby-level projection
func (r *Room) RoomState() RoomStateMsg {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roomStateLocked()
}

// Stop terminates the tick loop if running
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLoopLocked()
}

// ValidateHit implements HitValidator: an elimination contact observed
// now is confirmed at the attacker's rewound time.
func (r *Room) ValidateHit(attackerID, targetID string, now time.Time) bool {
	return r.rewind.ValidateHit(attackerID, targetID, now, r.rewind.EstimateLatency(attackerID))
}

// run is the fixed-interval tick loop, one goroutine per playing room
func (r *Room) run(stop chan struct{}) {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.step()
		}
	}
}

// step runs one authoritative tick: apply queued inputs, integrate,
// snapshot, resolve collisions, replenish dots, check termination,
// broadcast. Everything inside holds the room lock; broadcasts are
// non-blocking sends.
func (r *Room) step() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.applyQueuedInputsLocked()

	if r.phase != PhasePlaying {
		return
	}

	dt := 1.0 / float64(TickRate)
	r.tick++
	r.elapsed += dt
	now := time.Now()

	for _, p := range r.players {
		if p.Spinner == nil {
			log.Printf("room %s: player %s has no actor, skipping tick", r.Code, p.ID)
			continue
		}
		Integrate(p.Spinner, dt, ArenaWidth, ArenaHeight)
	}

	r.rewind.RecordSnapshot(r.snapshotLocked(now))

	spinners := make([]*Spinner, len(r.players))
	for i, p := range r.players {
		spinners[i] = p.Spinner
	}
	events := r.resolver.Resolve(spinners, r.dots, now)

	for _, c := range events.Consumed {
		if p := r.playerLocked(c.PlayerID); p != nil && p.Spinner.Size > p.PeakSize {
			p.PeakSize = p.Spinner.Size
		}
	}
	for _, e := range events.Eliminated {
		if killer := r.playerLocked(e.ByID); killer != nil {
			killer.Eliminations++
			if killer.Spinner.Size > killer.PeakSize {
				killer.PeakSize = killer.Spinner.Size
			}
		}
		r.broadcastJSONLocked(Envelope{T: MsgPlayerEliminated, Data: PlayerEliminatedMsg{
			PlayerID:     e.PlayerID,
			EliminatedBy: e.ByID,
		}})
	}

	// Hold the live dot count at the target within the same tick
	for len(r.dots) < TargetDotCount {
		d := NewDot(ArenaWidth, ArenaHeight)
		r.dots[d.ID] = d
	}

	if r.aliveCountLocked() <= 1 {
		r.finishLocked()
		return
	}

	r.broadcastTickStateLocked()
}

func (r *Room) applyQueuedInputsLocked() {
	for {
		select {
		case ev := <-r.inputs:
			p := r.playerLocked(ev.PlayerID)
			if p == nil || p.Spinner == nil {
				continue
			}
			// Sequence-keyed dedup: out-of-order or duplicate inputs
			// must never roll a direction backward
			if ev.Sequence <= r.lastSeq[ev.PlayerID] {
				continue
			}
			r.lastSeq[ev.PlayerID] = ev.Sequence
			p.Spinner.DirX = ev.DirX
			p.Spinner.DirY = ev.DirY
			r.rewind.RecordInput(ev.PlayerID, ev.ClientTime, ev.ServerTime)
		default:
			return
		}
	}
}

func (r *Room) drainInputsLocked() {
	for {
		select {
		case <-r.inputs:
		default:
			return
		}
	}
}

func (r *Room) snapshotLocked(now time.Time) WorldSnapshot {
	snap := WorldSnapshot{Timestamp: now, Actors: make([]ActorSample, 0, len(r.players))}
	for _, p := range r.players {
		if p.Spinner == nil {
			continue
		}
		snap.Actors = append(snap.Actors, ActorSample{
			PlayerID: p.ID,
			X:        p.Spinner.X,
			Y:        p.Spinner.Y,
			VX:       p.Spinner.VX,
			VY:       p.Spinner.VY,
			Size:     p.Spinner.Size,
			Alive:    p.Spinner.Alive,
		})
	}
	return snap
}

func (r *Room) aliveCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.IsAlive() {
			n++
		}
	}
	return n
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerViewsLocked() []PlayerView {
	views := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		views = append(views, p.View())
	}
	return views
}

func (r *Room) roomStateLocked() RoomStateMsg {
	return RoomStateMsg{
		RoomCode:  r.Code,
		Players:   r.playerViewsLocked(),
		IsPlaying: r.phase == PhasePlaying,
		Phase:     r.phase.String(),
	}
}

// finishLocked ends the match, reporting the survivor (or none)
func (r *Room) finishLocked() {
	r.phase = PhaseOver
	r.stopLoopLocked()

	var winner *Player
	for _, p := range r.players {
		if p.IsAlive() {
			winner = p
			break
		}
	}

	var winnerView *PlayerView
	if winner != nil {
		v := winner.View()
		winnerView = &v
	}
	r.broadcastTickStateLocked()
	r.broadcastJSONLocked(Envelope{T: MsgGameOver, Data: GameOverMsg{Winner: winnerView}})
	r.broadcastJSONLocked(Envelope{T: MsgRoomState, Data: r.roomStateLocked()})

	if r.db != nil {
		winnerName := ""
		if winner != nil {
			winnerName = winner.Name
		}
		go r.persistMatch(winnerName, r.elapsed, snapshotPlayers(r.players))
	}
}

// matchResult is a detached copy of per-player results, safe to write
// to the database off the tick goroutine
type matchResult struct {
	AuthID       int64
	Name         string
	Size         float64
	PeakSize     float64
	Eliminations int
	Alive        bool
}

func snapshotPlayers(players []*Player) []matchResult {
	out := make([]matchResult, 0, len(players))
	for _, p := range players {
		m := matchResult{
			AuthID:       p.AuthID,
			Name:         p.Name,
			Eliminations: p.Eliminations,
			PeakSize:     p.PeakSize,
			Alive:        p.IsAlive(),
		}
		if p.Spinner != nil {
			m.Size = p.Spinner.Size
		}
		out = append(out, m)
	}
	return out
}

func (r *Room) persistMatch(winnerName string, duration float64, results []matchResult) {
	matchID, err := r.db.RecordMatch(r.Code, duration, winnerName)
	if err != nil {
		log.Printf("room %s: record match: %v", r.Code, err)
		return
	}
	for _, m := range results {
		won := winnerName != "" && m.Alive
		if err := r.db.RecordMatchPlayer(matchID, m.AuthID, m.Name, m.Size, m.Eliminations, won); err != nil {
			log.Printf("room %s: record match player: %v", r.Code, err)
		}
		if m.AuthID != 0 {
			if err := r.db.UpdateStatsAfterMatch(m.AuthID, m.Eliminations, won, m.PeakSize, duration); err != nil {
				log.Printf("room %s: update stats: %v", r.Code, err)
			}
		}
	}
}

func (r *Room) stopLoopLocked() {
	if r.running {
		r.running = false
		close(r.stop)
	}
}

func (r *Room) broadcastJSONLocked(env Envelope) {
	for _, c := range r.clients {
		c.SendJSON(env)
	}
}

func (r *Room) broadcastTickStateLocked() {
	state := GameStateMsg{
		Players: make([]SpinnerTickState, 0, len(r.players)),
		Dots:    make([]DotTickState, 0, len(r.dots)),
		Elapsed: round1(r.elapsed),
		Tick:    r.tick,
	}
	for _, p := range r.players {
		if p.Spinner == nil {
			continue
		}
		state.Players = append(state.Players, p.Spinner.ToState(r.lastSeq[p.ID]))
	}
	for _, d := range r.dots {
		state.Dots = append(state.Dots, d.ToState())
	}

	data, err := msgpack.Marshal(state)
	if err != nil {
		log.Printf("room %s: marshal tick state: %v", r.Code, err)
		return
	}
	for _, c := range r.clients {
		c.SendBinary(data)
	}
}
