package services

import (
	"sort"
	"strings"

	"github.com/arthurkowalsky/timetune/models"
)

// RoomPhase is the coarse room-level phase.
type RoomPhase string

const (
	RoomPhaseWaiting  RoomPhase = "waiting"
	RoomPhaseStarting RoomPhase = "starting"
	RoomPhasePlaying  RoomPhase = "playing"
	RoomPhaseFinished RoomPhase = "finished"
)

// GamePhase is the fine-grained phase that drives turn mechanics.
type GamePhase string

const (
	PhaseSetup     GamePhase = "setup"
	PhasePlaying   GamePhase = "playing"
	PhasePlacing   GamePhase = "placing"
	PhaseRecording GamePhase = "recording"
	PhaseReveal    GamePhase = "reveal"
	PhaseFinished  GamePhase = "finished"
)

type Player struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Timeline     []models.Song `json:"timeline"`
	BonusPoints  int           `json:"bonusPoints"`
	ConnectionID string        `json:"connectionId"`
	IsHost       bool          `json:"isHost"`
	IsConnected  bool          `json:"isConnected"`
	LastSeen     int64         `json:"lastSeen"`
	IsReady      bool          `json:"isReady"`
}

// Score is timeline length plus bonus points.
func (p *Player) Score() int {
	return len(p.Timeline) + p.BonusPoints
}

// VotingState exists only while the voice-vote sub-flow is running.
// At most one per room.
type VotingState struct {
	AudioData         string   `json:"audioData"`
	VotingDeadline    int64    `json:"votingDeadline"`
	YesVotes          int      `json:"yesVotes"`
	NoVotes           int      `json:"noVotes"`
	VotedPlayerIDs    []string `json:"votedPlayerIds"`
	RecordingPlayerID string   `json:"recordingPlayerId"`
}

func (v *VotingState) HasVoted(playerID string) bool {
	for _, id := range v.VotedPlayerIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

type GameState struct {
	Players            []*Player     `json:"players"`
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	Deck               []models.Song `json:"deck"`
	CurrentSong        *models.Song  `json:"currentSong"`
	Phase              GamePhase     `json:"phase"`
	LastGuessCorrect   *bool         `json:"lastGuessCorrect"`
	TargetScore        int           `json:"targetScore"`
	TurnStartedAt      *int64        `json:"turnStartedAt"`
	TurnTimeout        *int          `json:"turnTimeout"` // seconds, nil = disabled
	PreviewPosition    *int          `json:"previewPosition"`
	AutoPlayOnDraw     bool          `json:"autoPlayOnDraw"`
	VoiceVotingEnabled bool          `json:"voiceVotingEnabled"`
	VotingState        *VotingState  `json:"votingState"`
	MusicPlaying       bool          `json:"musicPlaying"`
	SongCategory       string        `json:"songCategory"`
	SelectedEra        string        `json:"selectedEra"`
	// Position claimed by the most recent placement, carried until the
	// deferred SONG_PLACED goes out after the recording step.
	PendingPlacementPosition *int `json:"pendingPlacementPosition,omitempty"`
}

type RoomState struct {
	RoomID            string    `json:"roomId"`
	RoomCode          string    `json:"roomCode"`
	HostID            string    `json:"hostId"` // connection id of the host
	CreatedAt         int64     `json:"createdAt"`
	MaxPlayers        int       `json:"maxPlayers"`
	RoomPhase         RoomPhase `json:"roomPhase"`
	GameState         GameState `json:"gameState"`
	Version           int64     `json:"version"`
	LastUpdated       int64     `json:"lastUpdated"`
	RecordingDeadline *int64    `json:"recordingDeadline"` // advisory, not enforced
}

// CurrentPlayer returns the active player, or nil outside a game.
func (rs *RoomState) CurrentPlayer() *Player {
	players := rs.GameState.Players
	idx := rs.GameState.CurrentPlayerIndex
	if idx < 0 || idx >= len(players) {
		return nil
	}
	return players[idx]
}

func (rs *RoomState) PlayerByID(playerID string) *Player {
	for _, p := range rs.GameState.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (rs *RoomState) NameTaken(name string) bool {
	for _, p := range rs.GameState.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// isPlacementCorrect checks a claimed position against the sorted timeline.
// Valid iff the new song's year is >= the song before the slot and <= the
// song after it. An empty timeline accepts any position.
func isPlacementCorrect(timeline []models.Song, newSong models.Song, position int) bool {
	if len(timeline) == 0 {
		return true
	}

	sorted := make([]models.Song, len(timeline))
	copy(sorted, timeline)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	if position > 0 && position-1 < len(sorted) && newSong.Year < sorted[position-1].Year {
		return false
	}
	if position >= 0 && position < len(sorted) && newSong.Year > sorted[position].Year {
		return false
	}

	return true
}

// insertIntoTimeline splices the song in at the claimed position and re-sorts,
// keeping the timeline ascending by year.
func insertIntoTimeline(timeline []models.Song, song models.Song, position int) []models.Song {
	if position < 0 {
		position = 0
	}
	if position > len(timeline) {
		position = len(timeline)
	}

	updated := make([]models.Song, 0, len(timeline)+1)
	updated = append(updated, timeline[:position]...)
	updated = append(updated, song)
	updated = append(updated, timeline[position:]...)
	sort.Slice(updated, func(i, j int) bool { return updated[i].Year < updated[j].Year })
	return updated
}
