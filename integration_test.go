package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub and returns
// the server, its WebSocket URL, and a cleanup func.
func startTestServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()

	// Temp client dir with a minimal index.html
	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	os.MkdirAll(jsDir, 0o755)
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)
	os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644)

	hub := NewHub(nil)
	go hub.Run()

	mux := SetupRoutes(hub, tmpDir)
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return srv, wsURL, srv.Close
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// readEnvelope reads one message from the WebSocket. Binary frames are
// msgpack-encoded tick state and come back as a game_state envelope.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		var gs GameStateMsg
		if err := msgpack.Unmarshal(raw, &gs); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return Envelope{T: MsgGameState, Data: gs}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntilKind discards messages until one of the wanted kind arrives.
func readUntilKind(t *testing.T, conn *websocket.Conn, kind string) Envelope {
	t.Helper()
	for i := 0; i < 100; i++ {
		env := readEnvelope(t, conn)
		if env.T == kind {
			return env
		}
	}
	t.Fatalf("never received %s", kind)
	return Envelope{}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// createRoom creates a room over the WebSocket and returns its join
// code and the creator's player ID.
func createRoom(t *testing.T, conn *websocket.Conn, name string) (string, string) {
	t.Helper()
	sendMsg(t, conn, MsgCreateRoom, CreateRoomMsg{PlayerName: name})
	created := readEnvelope(t, conn)
	if created.T != MsgRoomCreated {
		t.Fatalf("expected room_created, got %s", created.T)
	}
	d := dataMap(t, created)
	code := d["roomCode"].(string)
	playerID := d["playerId"].(string)
	_ = readEnvelope(t, conn) // room_state
	return code, playerID
}

// ---------- room creation ----------

func TestCreateRoomFlow(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, MsgCreateRoom, CreateRoomMsg{PlayerName: "Alice"})

	created := readEnvelope(t, c)
	if created.T != MsgRoomCreated {
		t.Fatalf("expected room_created, got %s", created.T)
	}
	d := dataMap(t, created)
	if !codeRe.MatchString(d["roomCode"].(string)) {
		t.Errorf("expected a 4-digit room code, got %v", d["roomCode"])
	}

	state := readEnvelope(t, c)
	if state.T != MsgRoomState {
		t.Fatalf("expected room_state, got %s", state.T)
	}
	sd := dataMap(t, state)
	if sd["phase"] != "lobby" {
		t.Errorf("expected lobby phase, got %v", sd["phase"])
	}
	players := sd["players"].([]interface{})
	if len(players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(players))
	}
	host := players[0].(map[string]interface{})
	if host["isHost"] != true {
		t.Error("creator should be host")
	}
	if host["name"] != "Alice" {
		t.Errorf("expected name Alice, got %v", host["name"])
	}
}

// ---------- joining ----------

func TestJoinUnknownRoom(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, MsgJoinRoom, JoinRoomMsg{RoomCode: "0000", PlayerName: "Lost"})

	errMsg := readEnvelope(t, c)
	if errMsg.T != MsgError {
		t.Fatalf("expected error, got %s", errMsg.T)
	}
}

func TestJoinRoomFlow(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Alice")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Bob"})

	joined := readEnvelope(t, c2)
	if joined.T != MsgRoomJoined {
		t.Fatalf("expected room_joined, got %s", joined.T)
	}
	jd := dataMap(t, joined)
	if jd["roomCode"] != code {
		t.Errorf("expected room %s, got %v", code, jd["roomCode"])
	}
	if len(jd["players"].([]interface{})) != 2 {
		t.Errorf("expected 2 players in join confirmation")
	}

	// The existing member hears about the newcomer
	notice := readEnvelope(t, c1)
	if notice.T != MsgPlayerJoined {
		t.Fatalf("expected player_joined, got %s", notice.T)
	}
	nd := dataMap(t, notice)
	joiner := nd["player"].(map[string]interface{})
	if joiner["name"] != "Bob" {
		t.Errorf("expected Bob in the join notice, got %v", joiner["name"])
	}
	if joiner["isHost"] != false {
		t.Error("joiner must not be host")
	}

	state := readEnvelope(t, c1)
	if state.T != MsgRoomState {
		t.Fatalf("expected room_state, got %s", state.T)
	}
	if len(dataMap(t, state)["players"].([]interface{})) != 2 {
		t.Error("room_state should list 2 players")
	}
}

func TestRoomFullOverWS(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Host")

	for i := 1; i < MaxPlayersPerRoom; i++ {
		c := dialWS(t, wsURL)
		defer c.Close()
		sendMsg(t, c, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "P"})
		if env := readEnvelope(t, c); env.T != MsgRoomJoined {
			t.Fatalf("join %d: expected room_joined, got %s", i, env.T)
		}
	}

	late := dialWS(t, wsURL)
	defer late.Close()
	sendMsg(t, late, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Late"})
	if env := readEnvelope(t, late); env.T != MsgError {
		t.Fatalf("expected error for full room, got %s", env.T)
	}
}

// ---------- starting a match ----------

func TestStartRequiresTwoPlayers(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createRoom(t, c, "Solo")

	sendMsg(t, c, MsgStartGame, nil)
	errMsg := readEnvelope(t, c)
	if errMsg.T != MsgError {
		t.Fatalf("expected error for solo start, got %s", errMsg.T)
	}
}

func TestStartRequiresHost(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Host")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Guest"})
	_ = readEnvelope(t, c2) // room_joined

	sendMsg(t, c2, MsgStartGame, nil)
	errMsg := readEnvelope(t, c2)
	if errMsg.T != MsgError {
		t.Fatalf("expected error for non-host start, got %s", errMsg.T)
	}
}

func TestStartGameBroadcastsTickState(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Alice")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Bob"})
	_ = readEnvelope(t, c2) // room_joined
	_ = readEnvelope(t, c1) // player_joined
	_ = readEnvelope(t, c1) // room_state

	sendMsg(t, c1, MsgStartGame, nil)

	started := readUntilKind(t, c1, MsgGameStarted)
	if started.T != MsgGameStarted {
		t.Fatal("host should receive game_started")
	}
	readUntilKind(t, c2, MsgGameStarted)

	// The tick loop broadcasts binary state frames
	state := readUntilKind(t, c1, MsgGameState)
	gs := state.Data.(GameStateMsg)
	if len(gs.Dots) != TargetDotCount {
		t.Errorf("expected %d dots, got %d", TargetDotCount, len(gs.Dots))
	}
	if len(gs.Players) != 2 {
		t.Fatalf("expected 2 players in tick state, got %d", len(gs.Players))
	}
	for _, p := range gs.Players {
		if !p.Alive {
			t.Error("both players should be alive at match start")
		}
		// A dot may already have been eaten by the time we read a frame
		if p.Size < InitialSpinnerSize {
			t.Errorf("size %f below the starting size", p.Size)
		}
	}
	if gs.Tick == 0 {
		t.Error("tick counter should advance")
	}
}

func TestInputOverWS(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Alice")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Bob"})
	_ = readEnvelope(t, c2)

	sendMsg(t, c1, MsgStartGame, nil)
	readUntilKind(t, c1, MsgGameStarted)

	sendMsg(t, c1, MsgPlayerInput, PlayerInputMsg{
		DX:       1,
		DY:       0,
		Sequence: 1,
		T:        time.Now().UnixMilli(),
	})

	// The input's sequence comes back as the ack on our spinner
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state := readUntilKind(t, c1, MsgGameState)
		gs := state.Data.(GameStateMsg)
		for _, p := range gs.Players {
			if p.Seq == 1 {
				return
			}
		}
	}
	t.Fatal("input sequence was never acknowledged in tick state")
}

func TestInputBeforeJoin(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	// Input without a room must not crash the connection
	sendMsg(t, c, MsgPlayerInput, PlayerInputMsg{DX: 1, Sequence: 1, T: time.Now().UnixMilli()})

	sendMsg(t, c, MsgListRooms, nil)
	env := readEnvelope(t, c)
	if env.T != MsgRooms {
		t.Fatalf("expected rooms, got %s", env.T)
	}
}

// ---------- room list & lifecycle ----------

func TestListRoomsOverWS(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, MsgListRooms, nil)
	listMsg := readEnvelope(t, c)
	if listMsg.T != MsgRooms {
		t.Fatalf("expected rooms, got %s", listMsg.T)
	}
	raw, _ := json.Marshal(listMsg.Data)
	var rooms []RoomInfo
	json.Unmarshal(raw, &rooms)
	if len(rooms) != 0 {
		t.Errorf("expected 0 rooms, got %d", len(rooms))
	}

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	code, _ := createRoom(t, c2, "Alice")

	sendMsg(t, c, MsgListRooms, nil)
	listMsg2 := readEnvelope(t, c)
	raw2, _ := json.Marshal(listMsg2.Data)
	var rooms2 []RoomInfo
	json.Unmarshal(raw2, &rooms2)
	if len(rooms2) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms2))
	}
	if rooms2[0].Code != code {
		t.Errorf("expected code %s, got %s", code, rooms2[0].Code)
	}
	if rooms2[0].Players != 1 {
		t.Errorf("expected 1 player, got %d", rooms2[0].Players)
	}
	if rooms2[0].Phase != "lobby" {
		t.Errorf("expected lobby phase, got %s", rooms2[0].Phase)
	}
}

func TestLeaveReleasesRoom(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createRoom(t, c, "Solo")

	sendMsg(t, c, MsgLeaveRoom, nil)

	sendMsg(t, c, MsgListRooms, nil)
	listMsg := readEnvelope(t, c)
	raw, _ := json.Marshal(listMsg.Data)
	var rooms []RoomInfo
	json.Unmarshal(raw, &rooms)
	if len(rooms) != 0 {
		t.Errorf("empty room should be released, got %d rooms", len(rooms))
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	_ = srv
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code, _ := createRoom(t, c1, "Alice")

	c2 := dialWS(t, wsURL)
	sendMsg(t, c2, MsgJoinRoom, JoinRoomMsg{RoomCode: code, PlayerName: "Bob"})
	_ = readEnvelope(t, c2) // room_joined
	_ = readEnvelope(t, c1) // player_joined
	_ = readEnvelope(t, c1) // room_state

	c2.Close()

	// Disconnect doubles as leave; the remaining member hears about it
	left := readUntilKind(t, c1, MsgPlayerLeft)
	if left.T != MsgPlayerLeft {
		t.Fatal("remaining player should receive player_left")
	}
}

// ---------- HTTP surface ----------

func TestQREndpoint(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	code, _ := createRoom(t, c, "Alice")

	resp, err := http.Get(srv.URL + "/qr?code=" + code)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("GET /qr status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}

	resp2, err := http.Get(srv.URL + "/qr?code=0000")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != 404 {
		t.Errorf("unknown room QR status = %d, want 404", resp2.StatusCode)
	}
}

func TestSPARoutingJoinPath(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/join/1234")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("GET /join/1234 status = %d, want 200", resp.StatusCode)
	}
	buf := make([]byte, 100)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "<html>") {
		t.Error("join deep link should serve index.html")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control: no-cache, got %q", cc)
	}
}

func TestSPARoutingStaticFiles(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/js/main.js")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("GET /js/main.js status = %d, want 200", resp.StatusCode)
	}
}

// ---------- hub ----------

func TestHubClientCount(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}
