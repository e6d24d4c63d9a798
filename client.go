package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // inputs arrive at up to 60Hz
	maxNameLen        = 16
)

// Client represents one WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   string
	roomCode   string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection. Messages with
// a 0xFF marker prefix go out as binary frames (the per-tick state).
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.sendRaw(data)
}

// sendRaw queues pre-marshaled bytes as a text message. Never blocks;
// a slow client drops the message.
func (c *Client) sendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// SendBinary queues bytes as a binary WebSocket message, prefixed with
// a 0xFF marker so WritePump can distinguish them from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Message: msg}})
}

// handleMessage routes incoming messages over the closed message-kind
// set (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgCreateRoom:
		c.handleCreateRoom(env.D)
	case MsgJoinRoom:
		c.handleJoinRoom(env.D)
	case MsgStartGame:
		c.handleStartGame()
	case MsgPlayerInput:
		c.handlePlayerInput(env.D)
	case MsgLeaveRoom:
		c.handleLeaveRoom()
	case MsgListRooms:
		c.handleListRooms()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	case MsgLeaderboard:
		c.handleLeaderboard(env.D)
	default:
		log.Printf("unknown message kind %q from %s", env.T, c.remoteAddr)
	}
}

func cleanName(name string) string {
	if name == "" {
		name = GenerateGuestName()
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// ensureIdentity returns the client's account ID, creating a guest
// record on first room entry so match results have a row to land on.
// Guests never appear on the leaderboard.
func (c *Client) ensureIdentity(name string) int64 {
	if c.authPlayerID != 0 || c.hub.db == nil {
		return c.authPlayerID
	}
	id, err := c.hub.db.CreateGuest(name + "_" + GenerateID(2))
	if err != nil {
		return 0
	}
	c.authPlayerID = id
	c.authUsername = name
	return id
}

func (c *Client) handleCreateRoom(data json.RawMessage) {
	var msg CreateRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.roomCode != "" {
		c.sendError("already in a room")
		return
	}

	room, err := c.hub.rooms.CreateRoom()
	if err != nil {
		c.sendError(err.Error())
		return
	}

	name := cleanName(msg.PlayerName)
	player, err := room.Join(name, c.ensureIdentity(name))
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.roomCode = room.Code
	c.playerID = player.ID
	room.SetClient(player.ID, c)

	c.SendJSON(Envelope{T: MsgRoomCreated, Data: RoomCreatedMsg{RoomCode: room.Code, PlayerID: player.ID}})
	c.SendJSON(Envelope{T: MsgRoomState, Data: room.RoomState()})
}

func (c *Client) handleJoinRoom(data json.RawMessage) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.roomCode != "" {
		c.sendError("already in a room")
		return
	}

	room := c.hub.rooms.GetRoom(msg.RoomCode)
	if room == nil {
		c.sendError(ErrRoomNotFound.Error())
		return
	}

	name := cleanName(msg.PlayerName)
	player, err := room.Join(name, c.ensureIdentity(name))
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.roomCode = room.Code
	c.playerID = player.ID

	// Announce to the existing members before registering our own
	// broadcaster, so the joiner doesn't see its own join event
	room.broadcastJoin(player)
	room.SetClient(player.ID, c)

	c.SendJSON(Envelope{T: MsgRoomJoined, Data: RoomJoinedMsg{
		RoomCode: room.Code,
		PlayerID: player.ID,
		Players:  room.Players(),
	}})
}

func (c *Client) handleStartGame() {
	room := c.currentRoom()
	if room == nil {
		c.sendError(ErrRoomNotFound.Error())
		return
	}
	if err := room.Start(c.playerID); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) handlePlayerInput(data json.RawMessage) {
	room := c.currentRoom()
	if room == nil {
		return
	}
	var msg PlayerInputMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	room.HandleInput(InputEvent{
		PlayerID:   c.playerID,
		Sequence:   msg.Sequence,
		ClientTime: time.UnixMilli(msg.T),
		ServerTime: time.Now(),
		DirX:       msg.DX,
		DirY:       msg.DY,
	})
}

func (c *Client) handleLeaveRoom() {
	if c.roomCode == "" {
		return
	}
	if room := c.hub.rooms.GetRoom(c.roomCode); room != nil {
		room.Leave(c.playerID)
	}
	c.roomCode = ""
	c.playerID = ""
}

func (c *Client) handleListRooms() {
	c.SendJSON(Envelope{T: MsgRooms, Data: c.hub.rooms.ListRooms()})
}

func (c *Client) currentRoom() *Room {
	if c.roomCode == "" || c.playerID == "" {
		return nil
	}
	return c.hub.rooms.GetRoom(c.roomCode)
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.authPlayerID = id
	c.authUsername = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: msg.Token, Username: username, PlayerID: id}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	history, err := c.hub.db.GetMatchHistory(c.authPlayerID, 10)
	if err != nil {
		log.Printf("match history for %d: %v", c.authPlayerID, err)
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:     c.authUsername,
		Games:        stats.Games,
		Wins:         stats.Wins,
		Eliminations: stats.Eliminations,
		PeakSize:     stats.PeakSize,
		Playtime:     stats.Playtime,
		History:      history,
	}})
}

func (c *Client) handleLeaderboard(data json.RawMessage) {
	if c.hub.db == nil {
		c.sendError("leaderboard unavailable")
		return
	}
	var msg LeaderboardMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid request")
			return
		}
	}
	entries, err := c.hub.db.GetLeaderboard(msg.OrderBy, 20)
	if err != nil {
		c.sendError("leaderboard unavailable")
		return
	}
	c.SendJSON(Envelope{T: MsgLeaderboardData, Data: entries})
}
