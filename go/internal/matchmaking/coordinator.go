package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// State is the coordinator's matchmaking state.
type State int

const (
	StateIdle State = iota
	StateSessionCreating
	StateLobbyPolling
	StateRoundPolling
	StateActive
	StateTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSessionCreating:
		return "SESSION_CREATING"
	case StateLobbyPolling:
		return "LOBBY_POLLING"
	case StateRoundPolling:
		return "ROUND_POLLING"
	case StateActive:
		return "ACTIVE"
	case StateTimeout:
		return "TIMEOUT"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends a matchmaking attempt.
func (s State) Terminal() bool {
	return s == StateTimeout || s == StateError
}

// Config holds matchmaking tunables.
type Config struct {
	PollInterval         time.Duration
	MinPlayers           int
	MaxInitAttempts      int
	InitBackoff          scheduler.Backoff
	MaxTransientFailures int
	AttemptSlack         int // polls allowed beyond duration/interval
	DefaultWaitTime      time.Duration
	DefaultRoundTime     time.Duration
}

// DefaultConfig returns the standard matchmaking settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:         time.Second,
		MinPlayers:           2,
		MaxInitAttempts:      5,
		InitBackoff:          scheduler.Backoff{Base: time.Second, Factor: 1.5, Max: 30 * time.Second},
		MaxTransientFailures: 5,
		AttemptSlack:         5,
		DefaultWaitTime:      60 * time.Second,
		DefaultRoundTime:     30 * time.Second,
	}
}

// Callbacks connect the coordinator to the game facade. All are invoked on
// the loop.
type Callbacks struct {
	// RoundReady hands a live round over to the reconciler.
	RoundReady func(ctx context.Context, h models.RoundHandoff)
	// Failed reports a TIMEOUT or ERROR outcome.
	Failed func(ctx context.Context, state State, reason string)
	// GameOver reports that the server ended the game while a later round
	// was being awaited.
	GameOver func(ctx context.Context, status string)
}

// Coordinator drives session creation, the lobby wait and the wait for a
// round's mask to go live.
type Coordinator struct {
	cfg      Config
	gw       *remote.Gateway
	loop     *scheduler.Loop
	emit     *notify.Emitter
	username string
	cb       Callbacks

	state   State
	session models.Session

	waitTime  time.Duration
	roundTime time.Duration

	lobbyStarted      time.Time
	lobbyTicks        int
	initAttempts      int
	transientFailures int

	pollRound      int
	prevMask       string
	roundStartAt   time.Time
	maskTicks      int
	maskBudget     int
	unchangedTicks int

	lobby      *scheduler.Poller
	roundStart *scheduler.Poller
	wordMask   *scheduler.Poller
	initRetry  *scheduler.Poller
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(cfg Config, gw *remote.Gateway, loop *scheduler.Loop, emit *notify.Emitter, username string, cb Callbacks) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		gw:         gw,
		loop:       loop,
		emit:       emit,
		username:   username,
		cb:         cb,
		state:      StateIdle,
		lobby:      loop.NewPoller("lobby"),
		roundStart: loop.NewPoller("round-start"),
		wordMask:   loop.NewPoller("word-mask"),
		initRetry:  loop.NewPoller("init-retry"),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	return c.state
}

// SessionID returns the session being matched, if any.
func (c *Coordinator) SessionID() string {
	return c.session.ID
}

// Session returns the last observed session.
func (c *Coordinator) Session() models.Session {
	return c.session
}

// WaitTime returns the matchmaking timeout in effect.
func (c *Coordinator) WaitTime() time.Duration {
	return c.waitTime
}

func (c *Coordinator) setState(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	log.Info().
		Str("username", c.username).
		Str("session_id", c.session.ID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("matchmaking state changed")
	c.emit.Matchmaking(to.String(), "")
}

// Start begins matchmaking from IDLE, TIMEOUT, ERROR or ACTIVE. Calling it
// while matchmaking is already in progress is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	switch c.state {
	case StateSessionCreating, StateLobbyPolling, StateRoundPolling:
		log.Debug().Str("state", c.state.String()).Msg("matchmaking already in progress")
		return
	}
	c.stopPolling()
	c.initAttempts = 0
	c.session = models.Session{}
	c.initialize(ctx)
}

// Retry restarts matchmaking after a TIMEOUT or ERROR.
func (c *Coordinator) Retry(ctx context.Context) bool {
	if !c.state.Terminal() {
		return false
	}
	c.Start(ctx)
	return true
}

// Reset stops every matchmaking timer and returns to IDLE.
func (c *Coordinator) Reset() {
	c.stopPolling()
	c.state = StateIdle
	c.session = models.Session{}
	c.initAttempts = 0
	c.transientFailures = 0
}

func (c *Coordinator) stopPolling() {
	c.lobby.Stop()
	c.roundStart.Stop()
	c.wordMask.Stop()
	c.initRetry.Stop()
}

// initialize joins or creates a session, reads the admin timing config and
// starts lobby polling.
func (c *Coordinator) initialize(ctx context.Context) {
	c.setState(StateSessionCreating)
	c.emit.Status("Joining a game...")

	id, err := c.gw.JoinOrCreateSession(ctx, c.username)
	if err != nil {
		c.fail(ctx, StateError, "Could not join a game session: "+remote.Reason(err))
		return
	}
	c.session = models.Session{ID: id, Status: models.SessionStatusWaiting, Players: []string{c.username}}
	c.emit.SetSession(id)

	wait, err := c.gw.GetWaitTime(ctx)
	if err != nil {
		c.fail(ctx, StateError, "Could not read matchmaking settings: "+remote.Reason(err))
		return
	}
	roundTime, err := c.gw.GetRoundTime(ctx)
	if err != nil {
		c.fail(ctx, StateError, "Could not read round settings: "+remote.Reason(err))
		return
	}
	if wait <= 0 {
		wait = c.cfg.DefaultWaitTime
	}
	if roundTime <= 0 {
		roundTime = c.cfg.DefaultRoundTime
	}
	c.waitTime = wait
	c.roundTime = roundTime

	c.lobbyStarted = c.loop.Now()
	c.lobbyTicks = 0
	c.transientFailures = 0
	c.setState(StateLobbyPolling)

	log.Info().
		Str("session_id", id).
		Dur("wait_time", wait).
		Dur("round_time", roundTime).
		Msg("joined session, waiting for players")

	c.lobby.StartNow(c.cfg.PollInterval, c.lobbyTick)
}

func (c *Coordinator) lobbyBudget() int {
	return int(c.waitTime/c.cfg.PollInterval) + c.cfg.AttemptSlack
}

// lobbyTick is one lobby poll.
func (c *Coordinator) lobbyTick(ctx context.Context) {
	if c.state != StateLobbyPolling {
		c.lobby.Stop()
		return
	}
	c.lobbyTicks++

	// The admin may change the wait time while we wait.
	if wait, err := c.gw.GetWaitTime(ctx); err == nil && wait > 0 && wait != c.waitTime {
		log.Info().Dur("old", c.waitTime).Dur("new", wait).Msg("wait time changed, restarting lobby clock")
		c.waitTime = wait
		c.lobbyStarted = c.loop.Now()
		c.lobbyTicks = 1
	}

	sess, found, err := c.gw.FindSession(ctx, c.session.ID)
	if err != nil {
		c.absorb(ctx, "Connection problem while waiting for players...", err)
		return
	}
	c.transientFailures = 0
	if !found {
		c.fail(ctx, StateError, "Your game session was lost. Please try again.")
		return
	}
	c.session = sess

	if sess.Ready(c.cfg.MinPlayers) {
		log.Info().
			Str("session_id", sess.ID).
			Strs("players", sess.Players).
			Msg("session is playing, polling for round start")
		c.lobby.Stop()
		c.emit.Status("Game found! Starting round 1...")
		c.PollRound(ctx, 1, "")
		return
	}

	switch sess.Status {
	case models.SessionStatusWaiting, models.SessionStatusPlaying:
	default:
		c.lobby.Stop()
		c.scheduleInitRetry(ctx, "session is "+string(sess.Status))
		return
	}

	elapsed := c.loop.Now().Sub(c.lobbyStarted)
	if elapsed >= c.waitTime || c.lobbyTicks > c.lobbyBudget() {
		c.fail(ctx, StateTimeout, "No opponent found. Try again or return to the menu.")
		return
	}

	if sess.Status == models.SessionStatusWaiting {
		err := c.gw.RequestToJoin(ctx, c.username)
		switch {
		case err == nil:
			c.emit.Status("Opponent found! Starting game...")
		case errors.Is(err, remote.ErrNoOpponentFound):
			remaining := c.waitTime - elapsed
			c.emit.Statusf("Waiting for players... %ds left (%d in lobby)", int(remaining.Seconds()), len(sess.Players))
		case remote.IsTransport(err):
			c.absorb(ctx, "Connection problem while waiting for players...", err)
		default:
			c.fail(ctx, StateError, "Could not join the game: "+remote.Reason(err))
		}
	}
}

// scheduleInitRetry re-runs initialization after an exponential backoff.
func (c *Coordinator) scheduleInitRetry(ctx context.Context, reason string) {
	c.initAttempts++
	if c.initAttempts >= c.cfg.MaxInitAttempts {
		c.fail(ctx, StateError, "Failed to start the game after several attempts.")
		return
	}

	delay := c.cfg.InitBackoff.Delay(c.initAttempts - 1)
	log.Warn().
		Str("reason", reason).
		Int("attempt", c.initAttempts).
		Dur("delay", delay).
		Msg("unexpected session state, retrying initialization")
	c.setState(StateSessionCreating)
	c.emit.Statusf("Retrying matchmaking in %.1fs (attempt %d of %d)...",
		delay.Seconds(), c.initAttempts+1, c.cfg.MaxInitAttempts)

	c.initRetry.StartOnce(delay, func(ctx context.Context) {
		if c.state != StateSessionCreating {
			return
		}
		c.initialize(ctx)
	})
}

// absorb counts a transient failure, failing once the bound is exceeded.
func (c *Coordinator) absorb(ctx context.Context, status string, err error) {
	c.transientFailures++
	log.Warn().
		Err(err).
		Int("consecutive_failures", c.transientFailures).
		Str("state", c.state.String()).
		Msg("transient matchmaking failure")
	if c.transientFailures > c.cfg.MaxTransientFailures {
		c.fail(ctx, StateError, "Lost connection to the game server.")
		return
	}
	c.emit.Status(status)
}

func (c *Coordinator) fail(ctx context.Context, state State, reason string) {
	c.stopPolling()
	c.setState(state)
	c.emit.Status(reason)
	log.Warn().
		Str("session_id", c.session.ID).
		Str("state", state.String()).
		Str("reason", reason).
		Msg("matchmaking stopped")
	if c.cb.Failed != nil {
		c.cb.Failed(ctx, state, reason)
	}
}

// PollRound waits for the given round to go live. previousMask is the raw
// server mask of the round before, used to ignore stale masks.
func (c *Coordinator) PollRound(ctx context.Context, round int, previousMask string) {
	c.stopPolling()
	c.setState(StateRoundPolling)

	c.pollRound = round
	c.prevMask = previousMask
	c.maskTicks = 0
	c.unchangedTicks = 0
	c.transientFailures = 0

	c.refreshSession(ctx)
	if d, err := c.gw.GetRoundDuration(ctx, c.session.ID); err == nil && d > 0 {
		c.roundTime = d
	}
	if c.roundTime <= 0 {
		c.roundTime = c.cfg.DefaultRoundTime
	}
	c.maskBudget = int(c.roundTime/c.cfg.PollInterval) + c.cfg.AttemptSlack

	c.roundStartAt = c.resolveRoundStart(ctx, round)
	if !c.roundStartAt.IsZero() {
		if delay := c.roundStartAt.Sub(c.loop.Now()); delay > 0 {
			log.Info().Int("round", round).Dur("delay", delay).Msg("round starts in the future, delaying mask polling")
			c.emit.Statusf("Round %d starts in %ds...", round, int(delay.Round(time.Second).Seconds()))
			c.roundStart.StartOnce(delay, func(ctx context.Context) {
				if c.state != StateRoundPolling {
					return
				}
				c.wordMask.StartNow(c.cfg.PollInterval, c.wordMaskTick)
			})
			return
		}
	}

	c.emit.Statusf("Waiting for round %d to start...", round)
	c.wordMask.StartNow(c.cfg.PollInterval, c.wordMaskTick)
}

// refreshSession reloads the session so the handoff carries the current
// roster. The previous snapshot is kept when the lookup fails.
func (c *Coordinator) refreshSession(ctx context.Context) {
	sess, found, err := c.gw.FindSession(ctx, c.session.ID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", c.session.ID).Msg("could not refresh session before round")
		return
	}
	if !found {
		return
	}
	c.session = sess
}

// resolveRoundStart returns the server start time of a round, or the zero
// time when unknown.
func (c *Coordinator) resolveRoundStart(ctx context.Context, round int) time.Time {
	raw, err := c.gw.GetRoundStartTime(ctx, c.session.ID, round)
	if err != nil {
		log.Warn().Err(err).Int("round", round).Msg("could not read round start time")
	}
	if raw == "" && round == 1 {
		raw = c.session.StartTime
	}
	if raw == "" {
		return time.Time{}
	}
	t, err := models.ParseServerTime(raw)
	if err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("could not parse round start time")
		return time.Time{}
	}
	return t
}

// roundOpened reports whether the server has a start time for the polled
// round.
func (c *Coordinator) roundOpened(ctx context.Context) bool {
	if !c.roundStartAt.IsZero() {
		return true
	}
	raw, err := c.gw.GetRoundStartTime(ctx, c.session.ID, c.pollRound)
	if err != nil || raw == "" {
		return false
	}
	if t, err := models.ParseServerTime(raw); err == nil {
		c.roundStartAt = t
	}
	return true
}

// wordMaskTick is one poll for the round's mask.
func (c *Coordinator) wordMaskTick(ctx context.Context) {
	if c.state != StateRoundPolling {
		c.wordMask.Stop()
		return
	}
	c.maskTicks++
	if c.maskTicks > c.maskBudget {
		c.fail(ctx, StateError, "Timed out waiting for the round to start.")
		return
	}

	status, err := c.gw.GetGameStatus(ctx, c.username)
	if err != nil {
		if errors.Is(err, remote.ErrGameNotFound) {
			c.fail(ctx, StateError, "The game session no longer exists.")
			return
		}
		c.absorb(ctx, "Connection problem while waiting for the round...", err)
		return
	}
	c.transientFailures = 0

	if status != models.GameStatusPlaying {
		if models.IsTerminalGameStatus(status) && c.pollRound > 1 {
			c.stopPolling()
			c.setState(StateIdle)
			if c.cb.GameOver != nil {
				c.cb.GameOver(ctx, status)
			}
			return
		}
		c.emit.Status("Waiting for the game to start...")
		return
	}

	mask, err := c.gw.GetWordMask(ctx, c.username)
	if err != nil {
		if remote.IsTransport(err) {
			c.absorb(ctx, "Connection problem while waiting for the round...", err)
		}
		return
	}

	if mask.MaskedWord == "" {
		word, err := c.gw.GetRandomWord(ctx, c.session.ID)
		if err != nil || word == "" {
			return
		}
		mask.MaskedWord = models.HiddenMask(len(word))
	}

	// An unchanged mask is only live once the server reports the round.
	if mask.MaskedWord == c.prevMask && !c.roundOpened(ctx) {
		c.unchangedTicks++
		log.Debug().Int("round", c.pollRound).Int("unchanged_ticks", c.unchangedTicks).Msg("mask unchanged, still polling")
		return
	}

	c.wordMask.Stop()
	c.setState(StateActive)

	start := c.roundStartAt
	if start.IsZero() {
		start = c.loop.Now()
	}
	h := models.RoundHandoff{
		Session:     c.session,
		Round:       c.pollRound,
		Mask:        mask,
		ServerStart: start,
		Duration:    c.roundTime,
	}
	log.Info().
		Str("session_id", c.session.ID).
		Int("round", c.pollRound).
		Int("mask_length", len(mask.MaskedWord)).
		Msg("round is live")
	if c.cb.RoundReady != nil {
		c.cb.RoundReady(ctx, h)
	}
}
