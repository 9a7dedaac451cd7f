package services

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arthurkowalsky/timetune/models"
)

const (
	minPlayers          = 2
	defaultTargetScore  = 10
	defaultTurnTimeout  = 300 // seconds
	reconnectGrace      = 60 * time.Second
	voteWindow          = 10 * time.Second
	recordingWindow     = 30 * time.Second // advisory only, never enforced
	persistWriteTimeout = 5 * time.Second
)

// GameArchiver writes finished games to durable storage. Failures are logged
// and never fatal to the room.
type GameArchiver interface {
	SaveResult(result *models.GameResult) error
}

type envelope struct {
	client *Client // nil for internal timer commands
	cmd    Command
}

// Room is the authoritative coordinator for one game session. It is an
// actor: Run processes the inbox strictly sequentially, so handlers mutate
// state without locks and every command runs to completion before the next
// one is dequeued.
type Room struct {
	id   string
	code string

	state         *RoomState
	pendingDeck   []models.Song // supplied by the host, consumed on start
	gameStartedAt time.Time

	clients     map[string]*Client // connection id -> session
	connPlayers map[string]string  // connection id -> player id

	inbox  chan envelope
	attach chan *Client
	detach chan *Client
	done   chan struct{}

	scheduler  Scheduler
	snapshots  SnapshotStore
	archive    GameArchiver
	maxPlayers int
	onEmpty    func(code string)

	turnTimer        TimerHandle
	voteTimer        TimerHandle
	disconnectTimers map[string]TimerHandle
}

func NewRoom(code string, maxPlayers int, scheduler Scheduler, snapshots SnapshotStore, archive GameArchiver, onEmpty func(code string)) *Room {
	return &Room{
		id:               strings.ToLower(code),
		code:             strings.ToLower(code),
		clients:          make(map[string]*Client),
		connPlayers:      make(map[string]string),
		inbox:            make(chan envelope, 256),
		attach:           make(chan *Client, 16),
		detach:           make(chan *Client, 16),
		done:             make(chan struct{}),
		scheduler:        scheduler,
		snapshots:        snapshots,
		archive:          archive,
		maxPlayers:       maxPlayers,
		onEmpty:          onEmpty,
		disconnectTimers: make(map[string]TimerHandle),
	}
}

// Run is the actor loop. One goroutine per room; all state lives behind it.
func (r *Room) Run() {
	r.restore()

	for {
		select {
		case <-r.done:
			return
		case c := <-r.attach:
			r.handleAttach(c)
		case c := <-r.detach:
			r.handleDetach(c)
		case env := <-r.inbox:
			r.dispatch(env)
		}
	}
}

func (r *Room) Attach(c *Client) {
	select {
	case r.attach <- c:
	case <-r.done:
		close(c.send)
	}
}

func (r *Room) Detach(c *Client) {
	select {
	case r.detach <- c:
	case <-r.done:
	}
}

func (r *Room) Enqueue(env envelope) {
	select {
	case r.inbox <- env:
	case <-r.done:
	}
}

func (r *Room) enqueueInternal(cmd Command) {
	r.Enqueue(envelope{cmd: cmd})
}

// restore loads the persisted snapshot, if any. Connection identities in the
// snapshot are stale after a restart, so every player comes back disconnected
// until they RECONNECT.
func (r *Room) restore() {
	if r.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistWriteTimeout)
	defer cancel()

	data, err := r.snapshots.Load(ctx, r.id)
	if err != nil {
		log.Printf("Failed to load snapshot for room %s: %v", r.code, err)
		return
	}
	if data == nil {
		return
	}

	var state RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("Failed to decode snapshot for room %s: %v", r.code, err)
		return
	}

	for _, p := range state.GameState.Players {
		p.IsConnected = false
	}
	r.state = &state
	log.Printf("Restored room %s at version %d", r.code, state.Version)
}

func (r *Room) dispatch(env envelope) {
	switch cmd := env.cmd.(type) {
	case *CreateRoomCommand:
		r.handleCreateRoom(env.client, cmd)
	case *JoinRoomCommand:
		r.handleJoinRoom(env.client, cmd)
	case *ReconnectCommand:
		r.handleReconnect(env.client, cmd)
	case *LeaveRoomCommand:
		r.handleLeaveRoom(env.client)
	case *KickPlayerCommand:
		r.handleKickPlayer(env.client, cmd)
	case *SetReadyCommand:
		r.handleSetReady(env.client, cmd)
	case *StartGameCommand:
		r.handleStartGame(env.client)
	case *UpdateSettingsCommand:
		r.handleUpdateSettings(env.client, cmd)
	case *DrawCardCommand:
		r.handleDrawCard(env.client)
	case *PlaceSongCommand:
		r.handlePlaceSong(env.client, cmd)
	case *ClaimBonusCommand:
		r.handleClaimBonus(env.client)
	case *NextTurnCommand:
		r.handleNextTurn(env.client)
	case *HeartbeatCommand:
		r.handleHeartbeat(env.client)
	case *RequestSyncCommand:
		r.handleRequestSync(env.client)
	case *PositionPreviewCommand:
		r.handlePositionPreview(env.client, cmd)
	case *MusicStartedCommand:
		r.handleMusicStarted(env.client)
	case *SubmitRecordingCommand:
		r.handleSubmitRecording(env.client, cmd)
	case *SkipRecordingCommand:
		r.handleSkipRecording(env.client)
	case *SubmitVoteCommand:
		r.handleSubmitVote(env.client, cmd)
	case turnTimeoutFired:
		r.handleTurnTimeoutFired()
	case reconnectTimeoutFired:
		r.handleReconnectTimeoutFired(cmd)
	case voteDeadlineFired:
		r.handleVoteDeadlineFired()
	}
}

// --- connection lifecycle ---

func (r *Room) handleAttach(c *Client) {
	r.clients[c.id] = c
	c.lastHeartbeat = r.now()
	log.Printf("Client %s attached to room %s (%d connections)", c.id, r.code, len(r.clients))
}

func (r *Room) handleDetach(c *Client) {
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	delete(r.clients, c.id)
	close(c.send)

	playerID := r.connPlayers[c.id]
	delete(r.connPlayers, c.id)

	if r.state == nil {
		if len(r.clients) == 0 {
			r.shutdown(false)
		}
		return
	}

	player := r.state.PlayerByID(playerID)
	if player == nil || player.ConnectionID != c.id {
		// A stale socket for a player who already reconnected elsewhere.
		return
	}

	player.IsConnected = false
	player.LastSeen = r.now()
	r.touch()

	r.broadcast(newPlayerDisconnectedEvent(player.ID))

	r.armDisconnectTimer(player.ID)
	r.persist()
	log.Printf("Player %s disconnected from room %s, grace window started", player.Name, r.code)
}

// --- command handlers ---

func (r *Room) handleCreateRoom(c *Client, cmd *CreateRoomCommand) {
	if c == nil {
		return
	}
	if r.state != nil {
		r.sendError(c, ErrInvalidAction)
		return
	}

	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" {
		r.sendError(c, ErrInvalidAction)
		return
	}

	now := r.now()
	playerID := uuid.NewString()
	turnTimeout := defaultTurnTimeout

	player := &Player{
		ID:           playerID,
		Name:         name,
		Timeline:     []models.Song{},
		ConnectionID: c.id,
		IsHost:       true,
		IsConnected:  true,
		LastSeen:     now,
		IsReady:      true, // host is implicitly always ready
	}

	r.state = &RoomState{
		RoomID:      r.id,
		RoomCode:    strings.ToUpper(r.code),
		HostID:      c.id,
		CreatedAt:   now,
		MaxPlayers:  r.maxPlayers,
		RoomPhase:   RoomPhaseWaiting,
		Version:     1,
		LastUpdated: now,
		GameState: GameState{
			Players:      []*Player{player},
			Deck:         []models.Song{},
			Phase:        PhaseSetup,
			TargetScore:  defaultTargetScore,
			TurnTimeout:  &turnTimeout,
			SongCategory: "all",
			SelectedEra:  "all",
		},
	}

	r.connPlayers[c.id] = playerID

	r.sendTo(c, newRoomCreatedEvent(r.state.RoomCode, playerID, r.state))
	r.persist()
	log.Printf("Room %s created by %s", r.code, name)
}

func (r *Room) handleJoinRoom(c *Client, cmd *JoinRoomCommand) {
	if c == nil {
		return
	}
	if r.state == nil {
		r.sendError(c, ErrRoomNotFound)
		return
	}
	if r.state.RoomPhase != RoomPhaseWaiting {
		r.sendError(c, ErrGameAlreadyStarted)
		return
	}
	if len(r.state.GameState.Players) >= r.state.MaxPlayers {
		r.sendError(c, ErrRoomFull)
		return
	}

	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" {
		r.sendError(c, ErrInvalidAction)
		return
	}
	if r.state.NameTaken(name) {
		r.sendError(c, ErrPlayerNameTaken)
		return
	}

	now := r.now()
	player := &Player{
		ID:           uuid.NewString(),
		Name:         name,
		Timeline:     []models.Song{},
		ConnectionID: c.id,
		IsConnected:  true,
		LastSeen:     now,
	}

	r.state.GameState.Players = append(r.state.GameState.Players, player)
	r.touch()
	r.connPlayers[c.id] = player.ID

	r.sendTo(c, newRoomJoinedEvent(player.ID, r.state))
	r.broadcastExcept(c.id, newPlayerJoinedEvent(player))
	r.persist()
	log.Printf("Player %s joined room %s (%d/%d)", name, r.code, len(r.state.GameState.Players), r.state.MaxPlayers)
}

func (r *Room) handleReconnect(c *Client, cmd *ReconnectCommand) {
	if c == nil {
		return
	}
	if r.state == nil {
		r.sendError(c, ErrRoomNotFound)
		return
	}

	player := r.state.PlayerByID(cmd.PlayerID)
	if player == nil {
		r.sendError(c, ErrRoomNotFound)
		return
	}

	r.cancelDisconnectTimer(player.ID)

	// Drop any stale mapping from the player's previous socket.
	for connID, pid := range r.connPlayers {
		if pid == player.ID && connID != c.id {
			delete(r.connPlayers, connID)
		}
	}

	player.ConnectionID = c.id
	player.IsConnected = true
	player.LastSeen = r.now()

	if player.IsHost {
		r.state.HostID = c.id
	}
	r.touch()

	r.connPlayers[c.id] = player.ID

	r.sendTo(c, newRoomJoinedEvent(player.ID, r.state))
	r.broadcastExcept(c.id, newPlayerReconnectedEvent(player.ID))
	r.persist()
	log.Printf("Player %s reconnected to room %s", player.Name, r.code)
}

func (r *Room) handleLeaveRoom(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	playerID := r.connPlayers[c.id]
	if playerID == "" {
		return
	}
	r.removePlayer(playerID, "left")
}

func (r *Room) handleKickPlayer(c *Client, cmd *KickPlayerCommand) {
	if c == nil || r.state == nil {
		return
	}
	if r.state.HostID != c.id {
		r.sendError(c, ErrNotHost)
		return
	}

	target := r.state.PlayerByID(cmd.PlayerID)
	if target == nil || target.IsHost {
		return
	}

	r.removePlayer(target.ID, "kicked")
}

func (r *Room) handleSetReady(c *Client, cmd *SetReadyCommand) {
	if c == nil || r.state == nil {
		return
	}
	player := r.playerForConn(c)
	if player == nil || player.IsHost {
		return
	}

	player.IsReady = cmd.IsReady
	r.touch()

	r.broadcast(newPlayerReadyChangedEvent(player.ID, cmd.IsReady))
	r.persist()
}

func (r *Room) handleStartGame(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	if r.state.HostID != c.id {
		r.sendError(c, ErrNotHost)
		return
	}
	if r.state.RoomPhase != RoomPhaseWaiting {
		r.sendError(c, ErrGameAlreadyStarted)
		return
	}

	gs := &r.state.GameState
	if len(gs.Players) < minPlayers {
		r.sendError(c, ErrNotEnoughPlayers)
		return
	}
	for _, p := range gs.Players {
		if !p.IsReady && !p.IsHost {
			r.sendError(c, ErrPlayersNotReady)
			return
		}
	}

	deck := FilterByEra(FilterByCategory(r.pendingDeck, gs.SongCategory), gs.SelectedEra)
	// One starting card per player plus at least one left to draw.
	if len(deck) < len(gs.Players)+1 {
		r.sendError(c, ErrNoSongsProvided)
		return
	}

	shuffled := make([]models.Song, len(deck))
	copy(shuffled, deck)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, p := range gs.Players {
		card := shuffled[len(shuffled)-1]
		shuffled = shuffled[:len(shuffled)-1]
		p.Timeline = []models.Song{card}
		p.BonusPoints = 0
	}

	now := r.now()
	gs.Deck = shuffled
	gs.Phase = PhasePlaying
	gs.CurrentPlayerIndex = 0
	gs.CurrentSong = nil
	gs.LastGuessCorrect = nil
	gs.TurnStartedAt = &now
	r.state.RoomPhase = RoomPhasePlaying
	r.pendingDeck = nil
	r.gameStartedAt = r.scheduler.Now()
	r.touch()

	r.broadcast(newGameStartedEvent(gs))
	r.persist()
	r.armTurnTimer()
	log.Printf("Game started in room %s with %d players, %d songs", r.code, len(gs.Players), len(gs.Deck))
}

func (r *Room) handleUpdateSettings(c *Client, cmd *UpdateSettingsCommand) {
	if c == nil || r.state == nil {
		return
	}
	if r.state.HostID != c.id {
		r.sendError(c, ErrNotHost)
		return
	}
	// Settings are a lobby tool; an in-progress game keeps its configuration.
	if r.state.RoomPhase != RoomPhaseWaiting {
		r.sendError(c, ErrInvalidAction)
		return
	}

	gs := &r.state.GameState
	broadcastNeeded := false

	if cmd.TargetScore != nil {
		gs.TargetScore = *cmd.TargetScore
		broadcastNeeded = true
	}
	if cmd.MaxPlayers != nil {
		r.state.MaxPlayers = *cmd.MaxPlayers
		broadcastNeeded = true
	}
	if cmd.Deck != nil {
		r.pendingDeck = cmd.Deck
	}
	if cmd.TurnTimeoutSet {
		gs.TurnTimeout = cmd.TurnTimeout
		broadcastNeeded = true
	}
	if cmd.AutoPlayOnDraw != nil {
		gs.AutoPlayOnDraw = *cmd.AutoPlayOnDraw
		broadcastNeeded = true
	}
	if cmd.VoiceVotingEnabled != nil {
		gs.VoiceVotingEnabled = *cmd.VoiceVotingEnabled
		broadcastNeeded = true
	}
	if cmd.SongCategory != nil {
		gs.SongCategory = *cmd.SongCategory
		broadcastNeeded = true
	}
	if cmd.SelectedEra != nil {
		gs.SelectedEra = *cmd.SelectedEra
		broadcastNeeded = true
	}

	r.touch()

	if broadcastNeeded {
		r.broadcast(newSettingsUpdatedEvent(r.state))
	}

	r.persist()
}

func (r *Room) handleDrawCard(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhasePlaying {
		r.sendError(c, ErrInvalidAction)
		return
	}

	if len(gs.Deck) == 0 {
		r.finishGame()
		return
	}

	song := gs.Deck[0]
	gs.Deck = gs.Deck[1:]
	gs.CurrentSong = &song
	gs.Phase = PhasePlacing
	gs.PreviewPosition = nil
	gs.MusicPlaying = false
	r.touch()

	r.broadcast(newCardDrawnEvent(current.ID, song))
	r.clearTurnTimer()
	r.persist()
}

func (r *Room) handlePlaceSong(c *Client, cmd *PlaceSongCommand) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhasePlacing || gs.CurrentSong == nil {
		r.sendError(c, ErrInvalidAction)
		return
	}

	song := *gs.CurrentSong
	isCorrect := isPlacementCorrect(current.Timeline, song, cmd.Position)

	if isCorrect {
		current.Timeline = insertIntoTimeline(current.Timeline, song, cmd.Position)
	}

	position := cmd.Position
	gs.LastGuessCorrect = &isCorrect
	gs.PreviewPosition = nil
	gs.PendingPlacementPosition = &position
	r.clearTurnTimer()
	r.touch()

	if gs.VoiceVotingEnabled && isCorrect {
		// Reveal is deferred until the recording step resolves.
		gs.Phase = PhaseRecording
		deadline := r.now() + recordingWindow.Milliseconds()
		r.state.RecordingDeadline = &deadline
		r.broadcast(newRecordingPhaseStartedEvent(current.ID, deadline))
	} else {
		gs.Phase = PhaseReveal
		r.broadcast(newSongPlacedEvent(current.ID, position, isCorrect, song, current.Timeline))
	}

	r.persist()
}

func (r *Room) handleClaimBonus(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhaseReveal || gs.LastGuessCorrect == nil || !*gs.LastGuessCorrect {
		r.sendError(c, ErrInvalidAction)
		return
	}

	current.BonusPoints++
	r.touch()

	r.broadcast(newBonusClaimedEvent(current.ID, current.BonusPoints))
	r.persist()
}

func (r *Room) handleNextTurn(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		r.sendError(c, ErrNotYourTurn)
		return
	}
	if gs.Phase != PhaseReveal || gs.VotingState != nil {
		r.sendError(c, ErrInvalidAction)
		return
	}

	if r.checkWinner() != nil {
		r.finishGame()
		return
	}

	now := r.now()
	gs.CurrentPlayerIndex = (gs.CurrentPlayerIndex + 1) % len(gs.Players)
	gs.Phase = PhasePlaying
	gs.CurrentSong = nil
	gs.LastGuessCorrect = nil
	gs.TurnStartedAt = &now
	gs.PreviewPosition = nil
	gs.MusicPlaying = false
	gs.PendingPlacementPosition = nil
	r.touch()

	r.broadcast(newTurnChangedEvent(gs.CurrentPlayerIndex, PhasePlaying, now))
	r.persist()
	r.armTurnTimer()
}

func (r *Room) handleHeartbeat(c *Client) {
	if c == nil {
		return
	}
	c.lastHeartbeat = r.now()
}

func (r *Room) handleRequestSync(c *Client) {
	if c == nil {
		return
	}
	if r.state == nil {
		r.sendError(c, ErrRoomNotFound)
		return
	}
	r.sendTo(c, newStateSyncEvent(r.state))
}

func (r *Room) handlePositionPreview(c *Client, cmd *PositionPreviewCommand) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		return
	}
	if gs.Phase != PhasePlacing {
		return
	}

	gs.PreviewPosition = cmd.Position
	r.broadcastExcept(c.id, newPositionPreviewEvent(current.ID, cmd.Position))
}

func (r *Room) handleMusicStarted(c *Client) {
	if c == nil || r.state == nil {
		return
	}
	gs := &r.state.GameState

	current := r.state.CurrentPlayer()
	if current == nil || r.connPlayers[c.id] != current.ID {
		return
	}
	if gs.Phase != PhasePlacing {
		return
	}

	now := r.now()
	gs.TurnStartedAt = &now
	gs.MusicPlaying = true
	r.touch()

	r.broadcast(newTurnTimerStartedEvent(now))
	r.armTurnTimer()
	r.persist()
}

// --- turn machinery ---

func (r *Room) checkWinner() *Player {
	gs := &r.state.GameState
	for _, p := range gs.Players {
		if p.Score() >= gs.TargetScore {
			return p
		}
	}
	return nil
}

func (r *Room) finishGame() {
	gs := &r.state.GameState

	standings := make([]Standing, 0, len(gs.Players))
	for _, p := range gs.Players {
		standings = append(standings, Standing{
			PlayerID:       p.ID,
			PlayerName:     p.Name,
			Score:          p.Score(),
			TimelineLength: len(p.Timeline),
			BonusPoints:    p.BonusPoints,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})

	gs.Phase = PhaseFinished
	gs.VotingState = nil
	gs.CurrentSong = nil
	gs.TurnStartedAt = nil
	gs.PreviewPosition = nil
	gs.MusicPlaying = false
	gs.PendingPlacementPosition = nil
	r.state.RoomPhase = RoomPhaseFinished
	r.state.RecordingDeadline = nil
	r.touch()

	r.clearTurnTimer()
	r.clearVoteTimer()

	r.broadcast(newGameFinishedEvent(standings[0].PlayerID, standings))
	r.persist()
	r.archiveResult(standings)
	log.Printf("Game finished in room %s, winner %s", r.code, standings[0].PlayerName)
}

func (r *Room) archiveResult(standings []Standing) {
	if r.archive == nil {
		return
	}

	startedAt := r.gameStartedAt
	if startedAt.IsZero() {
		startedAt = time.UnixMilli(r.state.CreatedAt)
	}

	result := &models.GameResult{
		ID:         uuid.NewString(),
		RoomCode:   r.state.RoomCode,
		WinnerID:   standings[0].PlayerID,
		WinnerName: standings[0].PlayerName,
		StartedAt:  startedAt,
		FinishedAt: r.scheduler.Now(),
	}
	for i, s := range standings {
		result.Standings = append(result.Standings, models.GameStanding{
			PlayerID:       s.PlayerID,
			PlayerName:     s.PlayerName,
			Rank:           i + 1,
			Score:          s.Score,
			TimelineLength: s.TimelineLength,
			BonusPoints:    s.BonusPoints,
		})
	}

	go func() {
		if err := r.archive.SaveResult(result); err != nil {
			log.Printf("Failed to archive game result for room %s: %v", result.RoomCode, err)
		}
	}()
}

// removePlayer handles both voluntary leaves and kicks.
func (r *Room) removePlayer(playerID, reason string) {
	gs := &r.state.GameState

	idx := -1
	for i, p := range gs.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	player := gs.Players[idx]
	wasHost := player.IsHost
	wasCurrent := idx == gs.CurrentPlayerIndex

	gs.Players = append(gs.Players[:idx], gs.Players[idx+1:]...)
	delete(r.connPlayers, player.ConnectionID)
	r.cancelDisconnectTimer(player.ID)

	if client, ok := r.clients[player.ConnectionID]; ok && reason == "kicked" {
		r.sendTo(client, newErrorEvent(ErrKicked))
		if client.socket != nil {
			client.socket.Close()
		}
	}

	if len(gs.Players) == 0 {
		log.Printf("Last player left room %s, destroying it", r.code)
		r.shutdown(true)
		return
	}

	if wasHost {
		newHost := gs.Players[0]
		newHost.IsHost = true
		newHost.IsReady = true
		r.state.HostID = newHost.ConnectionID
		r.broadcast(newHostChangedEvent(newHost.ConnectionID, newHost.ID))
	}

	if idx < gs.CurrentPlayerIndex {
		gs.CurrentPlayerIndex--
	}
	if wasCurrent && r.state.RoomPhase == RoomPhasePlaying {
		gs.CurrentPlayerIndex = gs.CurrentPlayerIndex % len(gs.Players)
		gs.Phase = PhasePlaying
		gs.CurrentSong = nil
		gs.LastGuessCorrect = nil
		gs.PreviewPosition = nil
		gs.MusicPlaying = false
	}
	if gs.CurrentPlayerIndex >= len(gs.Players) {
		gs.CurrentPlayerIndex = gs.CurrentPlayerIndex % len(gs.Players)
	}

	// A vote about a player who is gone cannot resolve meaningfully.
	if gs.VotingState != nil && gs.VotingState.RecordingPlayerID == playerID {
		r.clearVoteTimer()
		gs.VotingState = nil
	}

	r.touch()
	r.broadcast(newPlayerLeftEvent(playerID, reason))
	r.persist()

	if wasCurrent && r.state.RoomPhase == RoomPhasePlaying {
		r.armTurnTimer()
	}
}

// skipToNextPlayer advances past the active player without a placement.
func (r *Room) skipToNextPlayer(skippedPlayerID, reason string) {
	gs := &r.state.GameState

	gs.CurrentPlayerIndex = (gs.CurrentPlayerIndex + 1) % len(gs.Players)
	gs.Phase = PhasePlaying
	gs.CurrentSong = nil
	gs.TurnStartedAt = nil
	gs.PreviewPosition = nil
	gs.MusicPlaying = false
	gs.PendingPlacementPosition = nil
	r.touch()

	r.broadcast(newTurnSkippedEvent(skippedPlayerID, reason, gs.CurrentPlayerIndex))
	r.persist()
	log.Printf("Skipped player %s in room %s (%s)", skippedPlayerID, r.code, reason)
}

// --- timers ---

// armTurnTimer cancels any outstanding turn timer and re-arms it for the
// active player. A disconnected active player is skipped immediately instead
// of waiting out the timeout.
func (r *Room) armTurnTimer() {
	r.clearTurnTimer()

	if r.state == nil || r.state.RoomPhase != RoomPhasePlaying {
		return
	}

	gs := &r.state.GameState
	current := r.state.CurrentPlayer()
	if current == nil {
		return
	}

	anyConnected := false
	for _, p := range gs.Players {
		if p.IsConnected {
			anyConnected = true
			break
		}
	}
	if !anyConnected {
		// Nobody left to play; the skip chain would spin forever.
		return
	}

	if !current.IsConnected && (gs.Phase == PhasePlaying || gs.Phase == PhasePlacing) {
		r.skipToNextPlayer(current.ID, "disconnected")
		r.armTurnTimer()
		return
	}

	if gs.TurnTimeout == nil {
		return
	}

	d := time.Duration(*gs.TurnTimeout) * time.Second
	r.turnTimer = r.scheduler.AfterFunc(d, func() {
		r.enqueueInternal(turnTimeoutFired{})
	})
}

func (r *Room) handleTurnTimeoutFired() {
	if r.state == nil || r.state.RoomPhase != RoomPhasePlaying {
		return
	}

	gs := &r.state.GameState
	if gs.Phase != PhasePlaying && gs.Phase != PhasePlacing {
		return
	}

	current := r.state.CurrentPlayer()
	if current == nil {
		return
	}

	r.skipToNextPlayer(current.ID, "timeout")
	r.armTurnTimer()
}

func (r *Room) armDisconnectTimer(playerID string) {
	r.cancelDisconnectTimer(playerID)
	r.disconnectTimers[playerID] = r.scheduler.AfterFunc(reconnectGrace, func() {
		r.enqueueInternal(reconnectTimeoutFired{PlayerID: playerID})
	})
}

func (r *Room) cancelDisconnectTimer(playerID string) {
	if handle, ok := r.disconnectTimers[playerID]; ok {
		handle.Stop()
		delete(r.disconnectTimers, playerID)
	}
}

func (r *Room) handleReconnectTimeoutFired(cmd reconnectTimeoutFired) {
	delete(r.disconnectTimers, cmd.PlayerID)

	if r.state == nil {
		return
	}

	player := r.state.PlayerByID(cmd.PlayerID)
	if player == nil || player.IsConnected {
		return
	}

	gs := &r.state.GameState
	current := r.state.CurrentPlayer()
	isCurrent := current != nil && current.ID == cmd.PlayerID

	if isCurrent && r.state.RoomPhase == RoomPhasePlaying &&
		(gs.Phase == PhasePlaying || gs.Phase == PhasePlacing) {
		r.skipToNextPlayer(cmd.PlayerID, "disconnected")
		r.armTurnTimer()
	}
}

func (r *Room) clearTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
}

func (r *Room) clearVoteTimer() {
	if r.voteTimer != nil {
		r.voteTimer.Stop()
		r.voteTimer = nil
	}
}

// --- plumbing ---

func (r *Room) now() int64 {
	return r.scheduler.Now().UnixMilli()
}

func (r *Room) touch() {
	r.state.Version++
	r.state.LastUpdated = r.now()
}

func (r *Room) playerForConn(c *Client) *Player {
	playerID := r.connPlayers[c.id]
	if playerID == "" {
		return nil
	}
	return r.state.PlayerByID(playerID)
}

func (r *Room) broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", evt.Type, err)
		return
	}

	for _, client := range r.clients {
		if !client.enqueueData(data) {
			log.Printf("Client %s send buffer full, dropping %s", client.id, evt.Type)
		}
	}
}

func (r *Room) broadcastExcept(excludeConnID string, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", evt.Type, err)
		return
	}

	for id, client := range r.clients {
		if id == excludeConnID {
			continue
		}
		if !client.enqueueData(data) {
			log.Printf("Client %s send buffer full, dropping %s", client.id, evt.Type)
		}
	}
}

func (r *Room) sendTo(c *Client, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", evt.Type, err)
		return
	}
	c.enqueueData(data)
}

func (r *Room) sendError(c *Client, code ErrorCode) {
	r.sendTo(c, newErrorEvent(code))
}

// persist snapshots the room after a mutation. The write itself is
// fire-and-forget: the broadcast has already happened and a crash between
// mutation and write loses at most the latest event.
func (r *Room) persist() {
	if r.state == nil || r.snapshots == nil {
		return
	}

	data, err := json.Marshal(r.state)
	if err != nil {
		log.Printf("Failed to marshal snapshot for room %s: %v", r.code, err)
		return
	}

	roomID := r.id
	store := r.snapshots
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistWriteTimeout)
		defer cancel()
		if err := store.Save(ctx, roomID, data); err != nil {
			log.Printf("Failed to persist room %s: %v", roomID, err)
		}
	}()
}

func (r *Room) shutdown(deleteSnapshot bool) {
	r.clearTurnTimer()
	r.clearVoteTimer()
	for id, handle := range r.disconnectTimers {
		handle.Stop()
		delete(r.disconnectTimers, id)
	}

	for id, client := range r.clients {
		close(client.send)
		if client.socket != nil {
			client.socket.Close()
		}
		delete(r.clients, id)
	}

	if deleteSnapshot && r.snapshots != nil {
		roomID := r.id
		store := r.snapshots
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistWriteTimeout)
			defer cancel()
			if err := store.Delete(ctx, roomID); err != nil {
				log.Printf("Failed to delete snapshot for room %s: %v", roomID, err)
			}
		}()
	}

	r.state = nil
	if r.onEmpty != nil {
		r.onEmpty(r.code)
	}
	close(r.done)
}
