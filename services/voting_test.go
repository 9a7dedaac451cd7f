package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRecording drives a 3-player game with voice voting enabled up to the
// recording phase: the active player has just placed correctly.
func setupRecording(t *testing.T) (*Room, *fakeScheduler, []*Client) {
	t.Helper()
	room, sch, _ := newTestRoom(t)
	clients := createRoomWith(t, room, "Ala", "Ola", "Ela")

	enabled := true
	room.dispatch(envelope{client: clients[0], cmd: &UpdateSettingsCommand{VoiceVotingEnabled: &enabled}})
	startGameWith(t, room, clients, standardDeck())

	forcePlacing(room, []int{1980}, 1990)
	room.dispatch(envelope{client: clients[0], cmd: &PlaceSongCommand{Position: 1}})
	return room, sch, clients
}

// setupVoting goes one step further: the recording has been submitted and the
// vote is open.
func setupVoting(t *testing.T) (*Room, *fakeScheduler, []*Client) {
	t.Helper()
	room, sch, clients := setupRecording(t)
	room.dispatch(envelope{client: clients[0], cmd: &SubmitRecordingCommand{AudioData: "data:audio/webm;base64,xyz"}})
	for _, c := range clients {
		drainEvents(t, c)
	}
	return room, sch, clients
}

func TestCorrectPlacementEntersRecording(t *testing.T) {
	room, _, clients := setupRecording(t)

	gs := &room.state.GameState
	assert.Equal(t, PhaseRecording, gs.Phase)
	require.NotNil(t, room.state.RecordingDeadline)

	events := drainEvents(t, clients[1])
	_, ok := findEvent(events, "RECORDING_PHASE_STARTED")
	assert.True(t, ok)
	_, placed := findEvent(events, "SONG_PLACED")
	assert.False(t, placed, "reveal is deferred until the recording resolves")
}

func TestIncorrectPlacementSkipsRecording(t *testing.T) {
	room, _, _ := newTestRoom(t)
	clients := createRoomWith(t, room, "Ala", "Ola")

	enabled := true
	room.dispatch(envelope{client: clients[0], cmd: &UpdateSettingsCommand{VoiceVotingEnabled: &enabled}})
	startGameWith(t, room, clients, standardDeck())

	forcePlacing(room, []int{1980}, 1990)
	room.dispatch(envelope{client: clients[0], cmd: &PlaceSongCommand{Position: 0}})

	assert.Equal(t, PhaseReveal, room.state.GameState.Phase)
	_, ok := findEvent(drainEvents(t, clients[1]), "SONG_PLACED")
	assert.True(t, ok, "a miss reveals immediately even with voice voting on")
}

func TestSubmitRecordingOpensVote(t *testing.T) {
	room, sch, clients := setupRecording(t)
	for _, c := range clients {
		drainEvents(t, c)
	}

	room.dispatch(envelope{client: clients[0], cmd: &SubmitRecordingCommand{AudioData: "blob"}})

	gs := &room.state.GameState
	assert.Equal(t, PhaseReveal, gs.Phase)
	assert.Nil(t, room.state.RecordingDeadline)
	require.NotNil(t, gs.VotingState)
	assert.Equal(t, room.state.CurrentPlayer().ID, gs.VotingState.RecordingPlayerID)

	events := drainEvents(t, clients[1])
	payload, ok := findEvent(events, "SONG_PLACED")
	require.True(t, ok)
	assert.Equal(t, true, payload["isCorrect"])
	assert.Equal(t, float64(1), payload["position"])

	payload, ok = findEvent(events, "GUESS_RECORDING")
	require.True(t, ok)
	assert.Equal(t, "blob", payload["audioData"])

	assert.Equal(t, 1, sch.pendingTimers(), "vote deadline timer should be armed")
}

func TestSkipRecordingRevealsWithoutVote(t *testing.T) {
	room, sch, clients := setupRecording(t)
	for _, c := range clients {
		drainEvents(t, c)
	}

	room.dispatch(envelope{client: clients[0], cmd: &SkipRecordingCommand{}})

	gs := &room.state.GameState
	assert.Equal(t, PhaseReveal, gs.Phase)
	assert.Nil(t, gs.VotingState)

	events := drainEvents(t, clients[1])
	_, ok := findEvent(events, "SONG_PLACED")
	assert.True(t, ok)
	_, voting := findEvent(events, "GUESS_RECORDING")
	assert.False(t, voting)
	assert.Equal(t, 0, sch.pendingTimers())
}

func TestSubmitRecordingWithoutAudioActsAsSkip(t *testing.T) {
	room, _, clients := setupRecording(t)
	for _, c := range clients {
		drainEvents(t, c)
	}

	room.dispatch(envelope{client: clients[0], cmd: &SubmitRecordingCommand{AudioData: ""}})

	assert.Equal(t, PhaseReveal, room.state.GameState.Phase)
	assert.Nil(t, room.state.GameState.VotingState)
}

func TestVoteYesShortCircuits(t *testing.T) {
	room, _, clients := setupVoting(t)
	recorder := room.state.CurrentPlayer()

	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: true}})

	gs := &room.state.GameState
	assert.Nil(t, gs.VotingState, "a yes vote resolves immediately")
	assert.Equal(t, 1, recorder.BonusPoints)

	events := drainEvents(t, clients[2])
	_, ok := findEvent(events, "BONUS_CLAIMED")
	assert.True(t, ok)
	payload, ok := findEvent(events, "VOTING_RESULT")
	require.True(t, ok)
	assert.Equal(t, true, payload["approved"])
	assert.Equal(t, "majority_yes", payload["reason"])
}

func TestVoteIsIdempotentPerPlayer(t *testing.T) {
	room, _, clients := setupVoting(t)

	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: false}})
	drainEvents(t, clients[2])
	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: false}})

	vs := room.state.GameState.VotingState
	require.NotNil(t, vs)
	assert.Equal(t, 1, vs.NoVotes)
	assert.Len(t, vs.VotedPlayerIDs, 1)

	_, ok := findEvent(drainEvents(t, clients[2]), "VOTE_UPDATE")
	assert.False(t, ok, "a repeated ballot must not produce another update")
}

func TestRecorderCannotVote(t *testing.T) {
	room, _, clients := setupVoting(t)

	room.dispatch(envelope{client: clients[0], cmd: &SubmitVoteCommand{Correct: true}})
	requireError(t, clients[0], ErrInvalidAction)
	require.NotNil(t, room.state.GameState.VotingState)
	assert.Equal(t, 0, room.state.GameState.VotingState.YesVotes)
}

func TestAllBallotsInResolvesEarly(t *testing.T) {
	room, _, clients := setupVoting(t)
	recorder := room.state.CurrentPlayer()

	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: false}})
	require.NotNil(t, room.state.GameState.VotingState, "one of two ballots keeps the vote open")

	room.dispatch(envelope{client: clients[2], cmd: &SubmitVoteCommand{Correct: false}})

	assert.Nil(t, room.state.GameState.VotingState)
	assert.Equal(t, 0, recorder.BonusPoints)

	payload, ok := findEvent(drainEvents(t, clients[1]), "VOTING_RESULT")
	require.True(t, ok)
	assert.Equal(t, false, payload["approved"])
	assert.Equal(t, "majority_no", payload["reason"])
}

func TestTieFavorsThePerformer(t *testing.T) {
	room, _, clients := setupVoting(t)
	recorder := room.state.CurrentPlayer()

	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: false}})
	room.dispatch(envelope{client: clients[2], cmd: &SubmitVoteCommand{Correct: true}})

	assert.Equal(t, 1, recorder.BonusPoints)
	payload, ok := findEvent(drainEvents(t, clients[1]), "VOTING_RESULT")
	require.True(t, ok)
	assert.Equal(t, true, payload["approved"])
	assert.Equal(t, "tie_favor_player", payload["reason"])
}

func TestVoteDeadlineWithoutBallots(t *testing.T) {
	room, sch, clients := setupVoting(t)
	recorder := room.state.CurrentPlayer()

	sch.Advance(voteWindow)
	drainInbox(room)

	assert.Nil(t, room.state.GameState.VotingState)
	assert.Equal(t, 0, recorder.BonusPoints)

	payload, ok := findEvent(drainEvents(t, clients[1]), "VOTING_RESULT")
	require.True(t, ok)
	assert.Equal(t, false, payload["approved"])
	assert.Equal(t, "timeout", payload["reason"])
}

func TestDisconnectedPlayersNotEligible(t *testing.T) {
	room, _, clients := setupVoting(t)

	room.handleDetach(clients[2])
	drainEvents(t, clients[1])

	// With one eligible voter left, a single no ballot closes the vote.
	room.dispatch(envelope{client: clients[1], cmd: &SubmitVoteCommand{Correct: false}})

	assert.Nil(t, room.state.GameState.VotingState)
	payload, ok := findEvent(drainEvents(t, clients[1]), "VOTING_RESULT")
	require.True(t, ok)
	assert.Equal(t, "majority_no", payload["reason"])
}

func TestNextTurnBlockedWhileVoteOpen(t *testing.T) {
	room, _, clients := setupVoting(t)

	room.dispatch(envelope{client: clients[0], cmd: &NextTurnCommand{}})
	requireError(t, clients[0], ErrInvalidAction)
	require.NotNil(t, room.state.GameState.VotingState)
}

func TestVotingOutcomeTable(t *testing.T) {
	tests := []struct {
		name     string
		yes      int
		no       int
		approved bool
		reason   string
	}{
		{"clear majority yes", 3, 1, true, "majority_yes"},
		{"clear majority no", 1, 3, false, "majority_no"},
		{"tie with ballots", 2, 2, true, "tie_favor_player"},
		{"no ballots at all", 0, 0, false, "timeout"},
		{"single yes", 1, 0, true, "majority_yes"},
		{"single no", 0, 1, false, "majority_no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, reason := votingOutcome(tt.yes, tt.no)
			assert.Equal(t, tt.approved, approved)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
