package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/arthurkowalsky/timetune/models"
)

// fakeScheduler drives room timers by hand. Advance moves the clock and fires
// every timer whose deadline has passed, in arming order.
type fakeScheduler struct {
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) Now() time.Time {
	return s.now
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	t := &fakeTimer{deadline: s.now.Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.now = s.now.Add(d)
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.deadline.After(s.now) {
			t.fired = true
			t.fn()
		}
	}
}

// pendingTimers counts timers that are armed and still live.
func (s *fakeScheduler) pendingTimers() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// memoryStore is an in-process SnapshotStore.
type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Save(ctx context.Context, roomID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[roomID] = data
	return nil
}

func (s *memoryStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[roomID], nil
}

func (s *memoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, roomID)
	return nil
}

// memoryArchive records game results handed to it.
type memoryArchive struct {
	mu      sync.Mutex
	results []*models.GameResult
}

func (a *memoryArchive) SaveResult(result *models.GameResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return nil
}

// newTestRoom builds a room whose handlers the test calls synchronously,
// without the actor goroutine. Timer callbacks land in the inbox; drainInbox
// runs them.
func newTestRoom(t *testing.T) (*Room, *fakeScheduler, *memoryStore) {
	t.Helper()
	sch := newFakeScheduler()
	store := newMemoryStore()
	room := NewRoom("abcd", 8, sch, store, nil, func(string) {})
	return room, sch, store
}

// newTestClient attaches a connection without a real socket behind it.
func newTestClient(room *Room) *Client {
	c := &Client{
		id:      uuid.NewString(),
		room:    room,
		send:    make(chan []byte, clientSendBuffer),
		limiter: rate.NewLimiter(10, 20),
	}
	room.handleAttach(c)
	return c
}

func drainInbox(room *Room) {
	for {
		select {
		case env := <-room.inbox:
			room.dispatch(env)
		default:
			return
		}
	}
}

func drainEvents(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var evt Event
			require.NoError(t, json.Unmarshal(data, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

// findEvent returns the first event of the given type and its payload.
func findEvent(events []Event, eventType string) (map[string]interface{}, bool) {
	for _, evt := range events {
		if evt.Type == eventType {
			payload, _ := evt.Payload.(map[string]interface{})
			return payload, true
		}
	}
	return nil, false
}

func song(id string, year int) models.Song {
	return models.Song{ID: id, Title: "song-" + id, Artist: "artist", Year: year, YoutubeID: "yt-" + id}
}

// createRoomWith sets up a lobby with the given player names; the first one
// is the host. Returns the clients in the same order.
func createRoomWith(t *testing.T, room *Room, names ...string) []*Client {
	t.Helper()
	clients := make([]*Client, 0, len(names))

	host := newTestClient(room)
	room.dispatch(envelope{client: host, cmd: &CreateRoomCommand{PlayerName: names[0]}})
	clients = append(clients, host)

	for _, name := range names[1:] {
		c := newTestClient(room)
		room.dispatch(envelope{client: c, cmd: &JoinRoomCommand{PlayerName: name}})
		room.dispatch(envelope{client: c, cmd: &SetReadyCommand{IsReady: true}})
		clients = append(clients, c)
	}

	for _, c := range clients {
		drainEvents(t, c)
	}
	return clients
}

// startGameWith pushes a deck through settings and starts the game.
func startGameWith(t *testing.T, room *Room, clients []*Client, deck []models.Song) {
	t.Helper()
	room.dispatch(envelope{client: clients[0], cmd: &UpdateSettingsCommand{Deck: deck}})
	room.dispatch(envelope{client: clients[0], cmd: &StartGameCommand{}})
	for _, c := range clients {
		drainEvents(t, c)
	}
}
