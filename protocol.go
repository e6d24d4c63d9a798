package main

import "encoding/json"

// Client -> Server message kinds
const (
	MsgCreateRoom  = "create_room"
	MsgJoinRoom    = "join_room"
	MsgStartGame   = "start_game"
	MsgPlayerInput = "player_input"
	MsgLeaveRoom   = "leave_room"
	MsgListRooms   = "list_rooms"
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth"
	MsgProfile     = "profile"
	MsgLeaderboard = "leaderboard"
)

// Server -> Client message kinds
const (
	MsgRoomCreated      = "room_created"
	MsgRoomJoined       = "room_joined"
	MsgPlayerJoined     = "player_joined"
	MsgPlayerLeft       = "player_left"
	MsgRoomState        = "room_state"
	MsgGameStarted      = "game_started"
	MsgGameState        = "game_state" // msgpack binary, once per tick
	MsgPlayerEliminated = "player_eliminated"
	MsgGameOver         = "game_over"
	MsgError            = "error"
	MsgRooms            = "rooms"
	MsgAuthOK           = "auth_ok"
	MsgProfileData      = "profile_data"
	MsgLeaderboardData  = "leaderboard_data"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateRoomMsg requests a new room; the sender joins it as host
type CreateRoomMsg struct {
	PlayerName string `json:"playerName"`
}

// JoinRoomMsg joins an existing room by its short code
type JoinRoomMsg struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// PlayerInputMsg carries one sequenced direction input.
// T is the client's send time in unix milliseconds.
type PlayerInputMsg struct {
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
	Sequence uint32  `json:"seq"`
	T        int64   `json:"t"`
}

// PlayerView is the read-only projection of a player exposed outward
type PlayerView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	IsHost  bool    `json:"isHost"`
	IsAlive bool    `json:"isAlive"`
	Size    float64 `json:"size"`
	Score   int     `json:"score"`
}

// RoomCreatedMsg confirms room creation to the host
type RoomCreatedMsg struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// RoomJoinedMsg confirms a join and lists current players
type RoomJoinedMsg struct {
	RoomCode string       `json:"roomCode"`
	PlayerID string       `json:"playerId"`
	Players  []PlayerView `json:"players"`
}

// PlayerJoinedMsg notifies existing players of a newcomer
type PlayerJoinedMsg struct {
	Player PlayerView `json:"player"`
}

// PlayerLeftMsg notifies remaining players of a departure
type PlayerLeftMsg struct {
	PlayerID string `json:"playerId"`
}

// RoomStateMsg is the lobby-level room projection
type RoomStateMsg struct {
	RoomCode  string       `json:"roomCode"`
	Players   []PlayerView `json:"players"`
	IsPlaying bool         `json:"isPlaying"`
	Phase     string       `json:"phase"`
}

// PlayerEliminatedMsg reports an in-game elimination
type PlayerEliminatedMsg struct {
	PlayerID     string `json:"playerId"`
	EliminatedBy string `json:"eliminatedBy,omitempty"`
}

// GameOverMsg ends a match; Winner is nil on a draw
type GameOverMsg struct {
	Winner *PlayerView `json:"winner"`
}

// ErrorMsg sends a rejection to the requester
type ErrorMsg struct {
	Message string `json:"message"`
}

// RoomInfo is used in the room list
type RoomInfo struct {
	Code    string `json:"code"`
	Players int    `json:"players"`
	Phase   string `json:"phase"`
}

// SpinnerTickState is broadcast per player each tick. Seq acknowledges
// the last input applied to this spinner, for client reconciliation.
type SpinnerTickState struct {
	ID    string  `msgpack:"id" json:"id"`
	X     float64 `msgpack:"x" json:"x"`
	Y     float64 `msgpack:"y" json:"y"`
	VX    float64 `msgpack:"vx" json:"vx"`
	VY    float64 `msgpack:"vy" json:"vy"`
	Size  float64 `msgpack:"sz" json:"sz"`
	Spin  float64 `msgpack:"sp" json:"sp"`
	Alive bool    `msgpack:"a" json:"a"`
	Seq   uint32  `msgpack:"q" json:"q"`
}

// DotTickState is broadcast per dot each tick
type DotTickState struct {
	ID string  `msgpack:"id" json:"id"`
	X  float64 `msgpack:"x" json:"x"`
	Y  float64 `msgpack:"y" json:"y"`
	R  float64 `msgpack:"r" json:"r"`
	V  float64 `msgpack:"v" json:"v"`
}

// GameStateMsg is the full per-tick state, msgpack-encoded on the wire
type GameStateMsg struct {
	Players []SpinnerTickState `msgpack:"p" json:"p"`
	Dots    []DotTickState     `msgpack:"d" json:"d"`
	Elapsed float64            `msgpack:"e" json:"e"`
	Tick    uint64             `msgpack:"tick" json:"tick"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates an existing account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"playerId"`
}

// ProfileDataMsg returns aggregate stats and recent matches for the
// authenticated player
type ProfileDataMsg struct {
	Username     string     `json:"username"`
	Games        int        `json:"games"`
	Wins         int        `json:"wins"`
	Eliminations int        `json:"eliminations"`
	PeakSize     float64    `json:"peakSize"`
	Playtime     float64    `json:"playtime"`
	History      []MatchRow `json:"history,omitempty"`
}

// LeaderboardMsg requests the leaderboard
type LeaderboardMsg struct {
	OrderBy string `json:"orderBy"`
}
