package services

import (
	"github.com/arthurkowalsky/timetune/models"
)

// Event is one outbound message. Everything the room emits goes through the
// same {type, payload} envelope the clients already speak.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ErrorCode values are stable identifiers; clients translate them locally.
// The coordinator never sends free-text reasons.
type ErrorCode string

const (
	ErrRoomNotFound       ErrorCode = "ROOM_NOT_FOUND"
	ErrRoomFull           ErrorCode = "ROOM_FULL"
	ErrGameAlreadyStarted ErrorCode = "GAME_ALREADY_STARTED"
	ErrNotYourTurn        ErrorCode = "NOT_YOUR_TURN"
	ErrInvalidAction      ErrorCode = "INVALID_ACTION"
	ErrNotHost            ErrorCode = "NOT_HOST"
	ErrNotEnoughPlayers   ErrorCode = "NOT_ENOUGH_PLAYERS"
	ErrPlayerNameTaken    ErrorCode = "PLAYER_NAME_TAKEN"
	ErrInvalidRoomCode    ErrorCode = "INVALID_ROOM_CODE"
	ErrPlayersNotReady    ErrorCode = "PLAYERS_NOT_READY"
	ErrNoSongsProvided    ErrorCode = "NO_SONGS_PROVIDED"
	ErrKicked             ErrorCode = "KICKED"
	ErrUnknown            ErrorCode = "UNKNOWN_ERROR"
)

type Standing struct {
	PlayerID       string `json:"playerId"`
	PlayerName     string `json:"playerName"`
	Score          int    `json:"score"`
	TimelineLength int    `json:"timelineLength"`
	BonusPoints    int    `json:"bonusPoints"`
}

func newErrorEvent(code ErrorCode) Event {
	return Event{Type: "ERROR", Payload: map[string]interface{}{"code": code}}
}

func newRoomCreatedEvent(roomCode, playerID string, state *RoomState) Event {
	return Event{Type: "ROOM_CREATED", Payload: map[string]interface{}{
		"roomCode":  roomCode,
		"playerId":  playerID,
		"roomState": state,
	}}
}

func newRoomJoinedEvent(playerID string, state *RoomState) Event {
	return Event{Type: "ROOM_JOINED", Payload: map[string]interface{}{
		"playerId":  playerID,
		"roomState": state,
	}}
}

func newPlayerJoinedEvent(player *Player) Event {
	return Event{Type: "PLAYER_JOINED", Payload: map[string]interface{}{
		"player": player,
	}}
}

func newPlayerLeftEvent(playerID, reason string) Event {
	return Event{Type: "PLAYER_LEFT", Payload: map[string]interface{}{
		"playerId": playerID,
		"reason":   reason, // left, kicked, timeout
	}}
}

func newPlayerReadyChangedEvent(playerID string, isReady bool) Event {
	return Event{Type: "PLAYER_READY_CHANGED", Payload: map[string]interface{}{
		"playerId": playerID,
		"isReady":  isReady,
	}}
}

func newSettingsUpdatedEvent(state *RoomState) Event {
	gs := &state.GameState
	return Event{Type: "SETTINGS_UPDATED", Payload: map[string]interface{}{
		"targetScore":        gs.TargetScore,
		"maxPlayers":         state.MaxPlayers,
		"turnTimeout":        gs.TurnTimeout,
		"autoPlayOnDraw":     gs.AutoPlayOnDraw,
		"voiceVotingEnabled": gs.VoiceVotingEnabled,
		"songCategory":       gs.SongCategory,
		"selectedEra":        gs.SelectedEra,
	}}
}

func newGameStartedEvent(gs *GameState) Event {
	return Event{Type: "GAME_STARTED", Payload: map[string]interface{}{
		"gameState": gs,
	}}
}

func newCardDrawnEvent(playerID string, song models.Song) Event {
	return Event{Type: "CARD_DRAWN", Payload: map[string]interface{}{
		"playerId": playerID,
		"song":     song,
	}}
}

func newSongPlacedEvent(playerID string, position int, isCorrect bool, song models.Song, timeline []models.Song) Event {
	return Event{Type: "SONG_PLACED", Payload: map[string]interface{}{
		"playerId":        playerID,
		"position":        position,
		"isCorrect":       isCorrect,
		"song":            song,
		"updatedTimeline": timeline,
	}}
}

func newBonusClaimedEvent(playerID string, newBonusPoints int) Event {
	return Event{Type: "BONUS_CLAIMED", Payload: map[string]interface{}{
		"playerId":       playerID,
		"newBonusPoints": newBonusPoints,
	}}
}

func newTurnChangedEvent(currentPlayerIndex int, phase GamePhase, turnStartedAt int64) Event {
	return Event{Type: "TURN_CHANGED", Payload: map[string]interface{}{
		"currentPlayerIndex": currentPlayerIndex,
		"phase":              phase,
		"turnStartedAt":      turnStartedAt,
	}}
}

func newTurnSkippedEvent(skippedPlayerID, reason string, newIndex int) Event {
	return Event{Type: "TURN_SKIPPED", Payload: map[string]interface{}{
		"skippedPlayerId":       skippedPlayerID,
		"reason":                reason, // timeout, disconnected
		"newCurrentPlayerIndex": newIndex,
		"turnStartedAt":         nil,
	}}
}

func newGameFinishedEvent(winnerID string, standings []Standing) Event {
	return Event{Type: "GAME_FINISHED", Payload: map[string]interface{}{
		"winnerId":       winnerID,
		"finalStandings": standings,
	}}
}

func newStateSyncEvent(state *RoomState) Event {
	return Event{Type: "STATE_SYNC", Payload: map[string]interface{}{
		"roomState": state,
	}}
}

func newPlayerReconnectedEvent(playerID string) Event {
	return Event{Type: "PLAYER_RECONNECTED", Payload: map[string]interface{}{
		"playerId": playerID,
	}}
}

func newPlayerDisconnectedEvent(playerID string) Event {
	return Event{Type: "PLAYER_DISCONNECTED", Payload: map[string]interface{}{
		"playerId": playerID,
	}}
}

func newHostChangedEvent(newHostConnID, newHostPlayerID string) Event {
	return Event{Type: "HOST_CHANGED", Payload: map[string]interface{}{
		"newHostId":       newHostConnID,
		"newHostPlayerId": newHostPlayerID,
	}}
}

func newTurnTimerStartedEvent(turnStartedAt int64) Event {
	return Event{Type: "TURN_TIMER_STARTED", Payload: map[string]interface{}{
		"turnStartedAt": turnStartedAt,
	}}
}

func newPositionPreviewEvent(playerID string, position *int) Event {
	return Event{Type: "POSITION_PREVIEW", Payload: map[string]interface{}{
		"playerId": playerID,
		"position": position,
	}}
}

func newRecordingPhaseStartedEvent(playerID string, deadline int64) Event {
	return Event{Type: "RECORDING_PHASE_STARTED", Payload: map[string]interface{}{
		"playerId":          playerID,
		"recordingDeadline": deadline,
	}}
}

func newGuessRecordingEvent(playerID, audioData string, votingDeadline int64) Event {
	return Event{Type: "GUESS_RECORDING", Payload: map[string]interface{}{
		"playerId":       playerID,
		"audioData":      audioData,
		"votingDeadline": votingDeadline,
	}}
}

func newVoteUpdateEvent(yesCount, noCount, eligibleVoters int) Event {
	return Event{Type: "VOTE_UPDATE", Payload: map[string]interface{}{
		"yesCount":       yesCount,
		"noCount":        noCount,
		"eligibleVoters": eligibleVoters,
	}}
}

func newVotingResultEvent(playerID string, approved bool, reason string, yesCount, noCount int) Event {
	return Event{Type: "VOTING_RESULT", Payload: map[string]interface{}{
		"playerId": playerID,
		"approved": approved,
		"reason":   reason, // majority_yes, majority_no, tie_favor_player, timeout
		"yesCount": yesCount,
		"noCount":  noCount,
	}}
}
