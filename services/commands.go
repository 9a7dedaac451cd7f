package services

import (
	"encoding/json"

	"github.com/arthurkowalsky/timetune/models"
)

// Command is the tagged union of everything a client may send. Each message
// type gets its own struct so the dispatcher can match exhaustively instead
// of poking at untyped payload maps.
type Command interface {
	isCommand()
}

type CreateRoomCommand struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomCommand struct {
	PlayerName string `json:"playerName"`
}

type ReconnectCommand struct {
	PlayerID string `json:"playerId"`
}

type LeaveRoomCommand struct{}

type KickPlayerCommand struct {
	PlayerID string `json:"playerId"`
}

type SetReadyCommand struct {
	IsReady bool `json:"isReady"`
}

type StartGameCommand struct{}

type UpdateSettingsCommand struct {
	TargetScore        *int          `json:"targetScore"`
	MaxPlayers         *int          `json:"maxPlayers"`
	Deck               []models.Song `json:"deck"`
	TurnTimeout        *int          `json:"turnTimeout"`
	TurnTimeoutSet     bool          `json:"-"`
	AutoPlayOnDraw     *bool         `json:"autoPlayOnDraw"`
	VoiceVotingEnabled *bool         `json:"voiceVotingEnabled"`
	SongCategory       *string       `json:"songCategory"`
	SelectedEra        *string       `json:"selectedEra"`
}

type DrawCardCommand struct{}

type PlaceSongCommand struct {
	Position int `json:"position"`
}

type ClaimBonusCommand struct{}

type NextTurnCommand struct{}

type HeartbeatCommand struct{}

type RequestSyncCommand struct {
	ClientVersion int64 `json:"clientVersion"`
}

type PositionPreviewCommand struct {
	Position *int `json:"position"`
}

type MusicStartedCommand struct{}

type SubmitRecordingCommand struct {
	AudioData string `json:"audioData"`
}

type SkipRecordingCommand struct{}

type SubmitVoteCommand struct {
	Correct bool `json:"correct"`
}

// Internal commands posted into the room inbox by timer callbacks. Handlers
// re-check phase and ownership, so a fire that raced a cancellation is a no-op.
type turnTimeoutFired struct{}

type reconnectTimeoutFired struct {
	PlayerID string
}

type voteDeadlineFired struct{}

func (CreateRoomCommand) isCommand()      {}
func (JoinRoomCommand) isCommand()        {}
func (ReconnectCommand) isCommand()       {}
func (LeaveRoomCommand) isCommand()       {}
func (KickPlayerCommand) isCommand()      {}
func (SetReadyCommand) isCommand()        {}
func (StartGameCommand) isCommand()       {}
func (UpdateSettingsCommand) isCommand()  {}
func (DrawCardCommand) isCommand()        {}
func (PlaceSongCommand) isCommand()       {}
func (ClaimBonusCommand) isCommand()      {}
func (NextTurnCommand) isCommand()        {}
func (HeartbeatCommand) isCommand()       {}
func (RequestSyncCommand) isCommand()     {}
func (PositionPreviewCommand) isCommand() {}
func (MusicStartedCommand) isCommand()    {}
func (SubmitRecordingCommand) isCommand() {}
func (SkipRecordingCommand) isCommand()   {}
func (SubmitVoteCommand) isCommand()      {}
func (turnTimeoutFired) isCommand()       {}
func (reconnectTimeoutFired) isCommand()  {}
func (voteDeadlineFired) isCommand()      {}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseCommand decodes one inbound frame. Malformed or unknown messages
// return nil and are silently dropped; the room never errors on them.
func ParseCommand(data []byte) Command {
	var msg rawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}

	decode := func(v Command) Command {
		if len(msg.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Payload, v); err != nil {
			return nil
		}
		return v
	}

	switch msg.Type {
	case "CREATE_ROOM":
		return decode(&CreateRoomCommand{})
	case "JOIN_ROOM":
		return decode(&JoinRoomCommand{})
	case "RECONNECT":
		return decode(&ReconnectCommand{})
	case "LEAVE_ROOM":
		return &LeaveRoomCommand{}
	case "KICK_PLAYER":
		return decode(&KickPlayerCommand{})
	case "SET_READY":
		return decode(&SetReadyCommand{})
	case "START_GAME":
		return &StartGameCommand{}
	case "UPDATE_SETTINGS":
		cmd := &UpdateSettingsCommand{}
		if decode(cmd) == nil {
			return nil
		}
		// A present-but-null turnTimeout means "disable", which is distinct
		// from the key being absent. Re-inspect the raw payload for the key.
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(msg.Payload, &keys); err == nil {
			_, cmd.TurnTimeoutSet = keys["turnTimeout"]
		}
		return cmd
	case "DRAW_CARD":
		return &DrawCardCommand{}
	case "PLACE_SONG":
		return decode(&PlaceSongCommand{})
	case "CLAIM_BONUS":
		return &ClaimBonusCommand{}
	case "NEXT_TURN":
		return &NextTurnCommand{}
	case "HEARTBEAT":
		return &HeartbeatCommand{}
	case "REQUEST_SYNC":
		cmd := &RequestSyncCommand{}
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, cmd)
		}
		return cmd
	case "POSITION_PREVIEW":
		return decode(&PositionPreviewCommand{})
	case "MUSIC_STARTED":
		return &MusicStartedCommand{}
	case "SUBMIT_RECORDING":
		return decode(&SubmitRecordingCommand{})
	case "SKIP_RECORDING":
		return &SkipRecordingCommand{}
	case "SUBMIT_VOTE":
		return decode(&SubmitVoteCommand{})
	default:
		return nil
	}
}
