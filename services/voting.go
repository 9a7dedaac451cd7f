package services

import (
	"log"

	"github.com/arthurkowalsky/timetune/models"
)

// startVoting opens the table vote on the active player's sung clip. The
// audio clip is relayed to every listener together with a hard deadline;
// whatever ballots are in by then decide the bonus.
func (r *Room) startVoting(recordingPlayerID, audioData string) {
	gs := &r.state.GameState

	deadline := r.now() + voteWindow.Milliseconds()
	gs.VotingState = &VotingState{
		RecordingPlayerID: recordingPlayerID,
		AudioData:         audioData,
		VotingDeadline:    deadline,
	}

	r.broadcast(newGuessRecordingEvent(recordingPlayerID, audioData, deadline))

	r.clearVoteTimer()
	r.voteTimer = r.scheduler.AfterFunc(voteWindow, func() {
		r.enqueueInternal(voteDeadlineFired{})
	})
}

func (r *Room) handleSubmitRecording(c *Client, cmd *SubmitRecordingCommand) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhaseRecording {
		r.sendError(c, ErrInvalidAction)
		return
	}

	r.revealDeferredPlacement(current)

	if gs.LastGuessCorrect != nil && *gs.LastGuessCorrect && cmd.AudioData != "" {
		r.startVoting(current.ID, cmd.AudioData)
	}

	r.touch()
	r.persist()
}

func (r *Room) handleSkipRecording(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhaseRecording {
		r.sendError(c, ErrInvalidAction)
		return
	}

	r.revealDeferredPlacement(current)
	r.touch()
	r.persist()
}

// revealDeferredPlacement emits the SONG_PLACED that was held back while the
// active player recorded, and moves the turn into reveal.
func (r *Room) revealDeferredPlacement(current *Player) {
	gs := &r.state.GameState

	gs.Phase = PhaseReveal
	r.state.RecordingDeadline = nil

	position := 0
	if gs.PendingPlacementPosition != nil {
		position = *gs.PendingPlacementPosition
	}
	isCorrect := gs.LastGuessCorrect != nil && *gs.LastGuessCorrect

	var song models.Song
	if gs.CurrentSong != nil {
		song = *gs.CurrentSong
	}

	r.broadcast(newSongPlacedEvent(current.ID, position, isCorrect, song, current.Timeline))
}

func (r *Room) handleSubmitVote(c *Client, cmd *SubmitVoteCommand) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	vs := gs.VotingState
	if vs == nil {
		r.sendError(c, ErrInvalidAction)
		return
	}

	voter := r.playerForConn(c)
	if voter == nil {
		return
	}
	if voter.ID == vs.RecordingPlayerID {
		r.sendError(c, ErrInvalidAction)
		return
	}
	if vs.HasVoted(voter.ID) {
		// Double submissions happen on flaky connections; first ballot wins.
		return
	}

	vs.VotedPlayerIDs = append(vs.VotedPlayerIDs, voter.ID)
	if cmd.Correct {
		vs.YesVotes++
	} else {
		vs.NoVotes++
	}

	eligible := 0
	for _, p := range gs.Players {
		if p.IsConnected && p.ID != vs.RecordingPlayerID {
			eligible++
		}
	}

	r.touch()
	r.broadcast(newVoteUpdateEvent(vs.YesVotes, vs.NoVotes, eligible))

	// A single yes settles it: the performance only has to convince someone.
	if cmd.Correct || len(vs.VotedPlayerIDs) >= eligible {
		r.resolveVoting()
		return
	}

	r.persist()
}

func (r *Room) handleVoteDeadlineFired() {
	if r.state == nil || r.state.GameState.VotingState == nil {
		return
	}
	r.resolveVoting()
}

func (r *Room) resolveVoting() {
	gs := &r.state.GameState
	vs := gs.VotingState
	if vs == nil {
		return
	}

	r.clearVoteTimer()

	approved, reason := votingOutcome(vs.YesVotes, vs.NoVotes)

	if approved {
		if recorder := r.state.PlayerByID(vs.RecordingPlayerID); recorder != nil {
			recorder.BonusPoints++
			r.broadcast(newBonusClaimedEvent(recorder.ID, recorder.BonusPoints))
		}
	}

	r.broadcast(newVotingResultEvent(vs.RecordingPlayerID, approved, reason, vs.YesVotes, vs.NoVotes))

	gs.VotingState = nil
	r.touch()
	r.persist()
	log.Printf("Vote resolved in room %s: approved=%t (%s)", r.code, approved, reason)
}

// votingOutcome applies the table rules: ties go to the performer, silence
// does not.
func votingOutcome(yes, no int) (bool, string) {
	switch {
	case yes > no:
		return true, "majority_yes"
	case no > yes:
		return false, "majority_no"
	case yes > 0:
		return true, "tie_favor_player"
	default:
		return false, "timeout"
	}
}
