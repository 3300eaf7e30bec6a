package game

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/matchmaking"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/round"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/mcdev12/wordgame/go/internal/score"
	"github.com/mcdev12/wordgame/go/internal/words"
	"github.com/rs/zerolog/log"
)

// Phase is the facade's top level screen state.
type Phase int

const (
	PhaseMenu Phase = iota
	PhaseMatchmaking
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseMenu:
		return "MENU"
	case PhaseMatchmaking:
		return "MATCHMAKING"
	case PhasePlaying:
		return "PLAYING"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// HistoryRepository defines what the app needs to record finished games
type HistoryRepository interface {
	RecordGame(ctx context.Context, username string, outcome models.GameOutcome) error
}

// EventPublisher defines what the app needs to publish game events
type EventPublisher interface {
	PublishRoundResult(ctx context.Context, sessionID, username string, res models.RoundResult) error
	PublishGameOutcome(ctx context.Context, username string, outcome models.GameOutcome) error
}

// Config holds everything the app needs to play.
type Config struct {
	Username    string
	Matchmaking matchmaking.Config
	Round       round.Config
	Words       []string
}

// DefaultConfig returns the standard settings for a user.
func DefaultConfig(username string) Config {
	return Config{
		Username:    username,
		Matchmaking: matchmaking.DefaultConfig(),
		Round:       round.DefaultConfig(),
	}
}

// Deps are the app's collaborators. Gateway and Sink are required.
type Deps struct {
	Gateway *remote.Gateway
	Sink    notify.Sink
	Clock   clockwork.Clock
	History HistoryRepository
	Events  EventPublisher
}

// App is the game lifecycle facade. Public methods may be called from any
// goroutine; they are posted onto the app's loop.
type App struct {
	cfg     Config
	loop    *scheduler.Loop
	gw      *remote.Gateway
	emit    *notify.Emitter
	tracker *score.Tracker
	coord   *matchmaking.Coordinator
	rec     *round.Reconciler
	history HistoryRepository
	events  EventPublisher

	phase Phase
}

// NewApp wires a facade for one player.
func NewApp(cfg Config, deps Deps) *App {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &App{
		cfg:     cfg,
		loop:    scheduler.NewLoop(clock),
		gw:      deps.Gateway,
		tracker: score.NewTracker(),
		history: deps.History,
		events:  deps.Events,
		phase:   PhaseMenu,
	}
	a.emit = notify.NewEmitter(deps.Sink, clock.Now)

	a.coord = matchmaking.NewCoordinator(cfg.Matchmaking, a.gw, a.loop, a.emit, cfg.Username, matchmaking.Callbacks{
		RoundReady: a.onRoundReady,
		Failed:     a.onMatchmakingFailed,
		GameOver:   a.onServerGameOver,
	})
	a.rec = round.NewReconciler(cfg.Round, a.gw, a.loop, a.emit, a.tracker, words.NewPicker(cfg.Words), cfg.Username, round.Callbacks{
		NextRound:  a.onNextRound,
		RoundEnded: a.onRoundEnded,
		GameEnded:  a.onGameEnded,
		Fatal:      a.onFatal,
	})
	return a
}

// Loop exposes the event loop so callers and tests can drive it.
func (a *App) Loop() *scheduler.Loop {
	return a.loop
}

// Run drives the app until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.loop.Run(ctx)
}

// Phase returns the current phase. Read it on the loop.
func (a *App) Phase() Phase {
	return a.phase
}

// Round returns the current round view. Read it on the loop.
func (a *App) Round() round.View {
	return a.rec.View()
}

// Matchmaking returns the coordinator state. Read it on the loop.
func (a *App) Matchmaking() matchmaking.State {
	return a.coord.State()
}

// Tracker returns the local win tally.
func (a *App) Tracker() *score.Tracker {
	return a.tracker
}

// StartGame begins matchmaking from the menu, a finished game or a failed
// search.
func (a *App) StartGame() {
	a.loop.Post(a.startGame)
}

// SubmitLetterGuess guesses one letter in the current round.
func (a *App) SubmitLetterGuess(letter string) {
	a.loop.Post(func(ctx context.Context) {
		err := a.rec.SubmitLetterGuess(ctx, letter)
		switch {
		case err == nil:
		case errors.Is(err, round.ErrInvalidLetter):
			a.emit.Status("Please enter a single letter A-Z")
		default:
			a.emit.Status("No round in progress")
		}
	})
}

// EndRoundEarly ends a round whose word is fully revealed.
func (a *App) EndRoundEarly() {
	a.loop.Post(func(ctx context.Context) {
		if err := a.rec.EndRoundEarly(ctx); err != nil {
			if errors.Is(err, round.ErrWordIncomplete) {
				a.emit.Status("Reveal the whole word before ending the round")
				return
			}
			a.emit.Status("No round in progress")
		}
	})
}

// ReturnToMenu cancels everything and goes back to the menu.
func (a *App) ReturnToMenu() {
	a.loop.Post(func(ctx context.Context) { a.returnToMenu() })
}

// RetryMatchmaking restarts matchmaking after a timeout or error.
func (a *App) RetryMatchmaking() {
	a.loop.Post(func(ctx context.Context) {
		if !a.coord.Retry(ctx) {
			log.Debug().Str("state", a.coord.State().String()).Msg("nothing to retry")
			return
		}
		a.phase = PhaseMatchmaking
	})
}

// ShowLeaderboard pushes a leaderboard snapshot to the UI.
func (a *App) ShowLeaderboard(players []models.Player) {
	a.loop.Post(func(ctx context.Context) { a.emit.Leaderboard(players) })
}

func (a *App) startGame(ctx context.Context) {
	// A timed out or failed search can be started over.
	searching := a.phase == PhaseMatchmaking && !a.coord.State().Terminal()
	if searching || a.phase == PhasePlaying {
		log.Debug().Str("phase", a.phase.String()).Msg("game already in progress")
		return
	}
	a.loop.StopAll()
	a.rec.Reset()
	a.coord.Reset()
	a.phase = PhaseMatchmaking
	log.Info().Str("username", a.cfg.Username).Msg("starting game")
	a.coord.Start(ctx)
}

// returnToMenu stops every timer before navigating.
func (a *App) returnToMenu() {
	a.loop.StopAll()
	a.coord.Reset()
	a.rec.Reset()
	a.phase = PhaseMenu
	log.Info().Str("username", a.cfg.Username).Msg("returned to menu")
	a.emit.NavigateToMenu()
}

func (a *App) onRoundReady(ctx context.Context, h models.RoundHandoff) {
	if a.phase != PhaseMatchmaking && a.phase != PhasePlaying {
		return
	}
	a.phase = PhasePlaying
	a.rec.BeginRound(ctx, h)
}

func (a *App) onMatchmakingFailed(ctx context.Context, state matchmaking.State, reason string) {
	if state == matchmaking.StateTimeout {
		a.emit.ErrorDialog("No opponent found", reason)
		return
	}
	a.emit.ErrorDialog("Matchmaking failed", reason)
	a.returnToMenu()
}

func (a *App) onServerGameOver(ctx context.Context, status string) {
	a.rec.EndGame(ctx, status)
}

func (a *App) onNextRound(ctx context.Context, next int, previousMask string) {
	a.coord.PollRound(ctx, next, previousMask)
}

func (a *App) onRoundEnded(ctx context.Context, res models.RoundResult) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishRoundResult(ctx, a.coord.SessionID(), a.cfg.Username, res); err != nil {
		log.Warn().Err(err).Int("round", res.Round).Msg("failed to publish round result")
	}
}

func (a *App) onGameEnded(ctx context.Context, outcome models.GameOutcome) {
	a.phase = PhaseFinished
	a.coord.Reset()

	if outcome.IsWinner(a.cfg.Username) {
		a.gw.IncrementWins(ctx, a.cfg.Username)
	}
	if a.history != nil {
		if err := a.history.RecordGame(ctx, a.cfg.Username, outcome); err != nil {
			log.Warn().Err(err).Str("session_id", outcome.SessionID).Msg("failed to record game")
		}
	}
	if a.events != nil {
		if err := a.events.PublishGameOutcome(ctx, a.cfg.Username, outcome); err != nil {
			log.Warn().Err(err).Str("session_id", outcome.SessionID).Msg("failed to publish game outcome")
		}
	}
}

func (a *App) onFatal(ctx context.Context, reason string) {
	a.emit.ErrorDialog("Game ended", reason)
	a.returnToMenu()
}

// Shutdown stops every timer without emitting navigation.
func (a *App) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	a.loop.Post(func(ctx context.Context) {
		a.loop.StopAll()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("timed out stopping game timers")
	}
}
