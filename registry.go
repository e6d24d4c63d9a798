package main

import (
	"fmt"
	"math/rand"
	"sync"
)

const (
	maxRooms        = 100
	roomCodeRetries = 32
)

// RoomRegistry creates, looks up, and garbage-collects rooms. It is
// the only state shared across rooms; each room's world is touched
// exclusively by its own tick loop.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	db    *DB
}

// NewRoomRegistry creates an empty registry
func NewRoomRegistry(db *DB) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		db:    db,
	}
}

// CreateRoom allocates a room under a fresh 4-digit join code. Codes
// are short for manual entry; on the rare exhaustion of retries the
// create fails rather than reusing a live code.
func (rr *RoomRegistry) CreateRoom() (*Room, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(rr.rooms) >= maxRooms {
		return nil, fmt.Errorf("too many active rooms")
	}

	code := ""
	for try := 0; try < roomCodeRetries; try++ {
		candidate := fmt.Sprintf("%04d", 1000+rand.Intn(9000))
		if _, taken := rr.rooms[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, fmt.Errorf("no free room code")
	}

	room := NewRoom(code, rr.db)
	room.onEmpty = rr.removeRoom
	rr.rooms[code] = room
	return room, nil
}

// GetRoom returns a room by code, or nil
func (rr *RoomRegistry) GetRoom(code string) *Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.rooms[code]
}

// removeRoom releases a registry entry. The room has already stopped
// its tick loop by the time this runs.
func (rr *RoomRegistry) removeRoom(code string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.rooms, code)
}

// RoomCount returns the number of live rooms
func (rr *RoomRegistry) RoomCount() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

// ListRooms returns info about all active rooms
func (rr *RoomRegistry) ListRooms() []RoomInfo {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	list := make([]RoomInfo, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		list = append(list, RoomInfo{
			Code:    room.Code,
			Players: room.PlayerCount(),
			Phase:   room.Phase().String(),
		})
	}
	return list
}
