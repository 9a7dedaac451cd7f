package services

import (
	"log"
	"regexp"
	"strings"
	"sync"
)

var roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,12}$`)

// ValidRoomCode reports whether code is acceptable as a room identifier.
// Codes are case-insensitive; callers get the canonical form from the room.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// RoomManager owns the live rooms, one actor goroutine each. Rooms come into
// existence on first connect and remove themselves when the last player
// leaves.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	scheduler  Scheduler
	snapshots  SnapshotStore
	archive    GameArchiver
	maxPlayers int
}

func NewRoomManager(scheduler Scheduler, snapshots SnapshotStore, archive GameArchiver, maxPlayers int) *RoomManager {
	return &RoomManager{
		rooms:      make(map[string]*Room),
		scheduler:  scheduler,
		snapshots:  snapshots,
		archive:    archive,
		maxPlayers: maxPlayers,
	}
}

// GetOrCreate returns the room for code, spawning its actor if it does not
// exist yet. A freshly spawned room tries to restore itself from Redis
// before processing its first command.
func (m *RoomManager) GetOrCreate(code string) *Room {
	key := strings.ToLower(code)

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[key]; ok {
		return room
	}

	room := NewRoom(key, m.maxPlayers, m.scheduler, m.snapshots, m.archive, m.remove)
	m.rooms[key] = room
	go room.Run()
	log.Printf("Spawned room %s (%d active)", key, len(m.rooms))
	return room
}

func (m *RoomManager) remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	log.Printf("Removed room %s (%d active)", code, len(m.rooms))
}

// Count returns the number of live rooms, for the health endpoint.
func (m *RoomManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
