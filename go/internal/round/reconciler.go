package round

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/mcdev12/wordgame/go/internal/score"
	"github.com/mcdev12/wordgame/go/internal/words"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoundNotActive = errors.New("no round in progress")
	ErrInvalidLetter  = errors.New("guess must be a single letter A-Z")
	ErrWordIncomplete = errors.New("word is not fully revealed")
)

// Config holds round tunables.
type Config struct {
	MaxGuesses            int
	WinThreshold          int
	DefaultRoundTime      time.Duration
	TransitionDelay       time.Duration
	NextRoundPollInterval time.Duration
	NextRoundFallback     time.Duration
	GameStatePollInterval time.Duration
	SyncInterval          time.Duration
	TickInterval          time.Duration
	MaskRefreshRetries    int
	LocalOnlyAfter        int // consecutive remote failures before guesses resolve locally
}

// DefaultConfig returns the standard round settings.
func DefaultConfig() Config {
	return Config{
		MaxGuesses:            5,
		WinThreshold:          score.DefaultWinThreshold,
		DefaultRoundTime:      30 * time.Second,
		TransitionDelay:       10 * time.Second,
		NextRoundPollInterval: 500 * time.Millisecond,
		NextRoundFallback:     15 * time.Second,
		GameStatePollInterval: time.Second,
		SyncInterval:          3 * time.Second,
		TickInterval:          time.Second,
		MaskRefreshRetries:    3,
		LocalOnlyAfter:        3,
	}
}

// View is what the player currently sees of a round.
type View struct {
	Number      int
	Mask        string
	GuessesLeft int
	Guessed     []string
	Correct     []string
	StartedAt   time.Time
	Duration    time.Duration
}

// Callbacks connect the reconciler to the game facade. All are invoked on
// the loop.
type Callbacks struct {
	// NextRound asks for the given round to be polled until it is live.
	NextRound func(ctx context.Context, round int, previousMask string)
	// RoundEnded reports every resolved round.
	RoundEnded func(ctx context.Context, res models.RoundResult)
	// GameEnded reports the single outcome of a game.
	GameEnded func(ctx context.Context, outcome models.GameOutcome)
	// Fatal reports that the session is gone.
	Fatal func(ctx context.Context, reason string)
}

// Reconciler merges server responses with locally inferred state into the
// player's view of the current round.
type Reconciler struct {
	cfg      Config
	gw       *remote.Gateway
	loop     *scheduler.Loop
	emit     *notify.Emitter
	tracker  *score.Tracker
	picker   *words.Picker
	username string
	cb       Callbacks

	session models.Session
	view    View
	guessed map[rune]bool
	correct map[rune]bool

	secret      string
	secretLocal bool
	serverMask  string

	active        bool
	transitioning bool
	gameOver      bool
	localOnly     bool
	failures      int
	pendingRound  int

	countdown  *scheduler.Poller
	gameState  *scheduler.Poller
	sync       *scheduler.Poller
	nextRound  *scheduler.Poller
	fallback   *scheduler.Poller
	transition *scheduler.Poller
}

// NewReconciler creates an idle reconciler.
func NewReconciler(cfg Config, gw *remote.Gateway, loop *scheduler.Loop, emit *notify.Emitter,
	tracker *score.Tracker, picker *words.Picker, username string, cb Callbacks) *Reconciler {
	if cfg.MaxGuesses <= 0 {
		cfg.MaxGuesses = 5
	}
	if cfg.WinThreshold <= 0 {
		cfg.WinThreshold = score.DefaultWinThreshold
	}
	if cfg.MaskRefreshRetries <= 0 {
		cfg.MaskRefreshRetries = 1
	}
	return &Reconciler{
		cfg:        cfg,
		gw:         gw,
		loop:       loop,
		emit:       emit,
		tracker:    tracker,
		picker:     picker,
		username:   username,
		cb:         cb,
		guessed:    make(map[rune]bool),
		correct:    make(map[rune]bool),
		countdown:  loop.NewPoller("countdown"),
		gameState:  loop.NewPoller("game-state"),
		sync:       loop.NewPoller("sync"),
		nextRound:  loop.NewPoller("next-round"),
		fallback:   loop.NewPoller("next-round-fallback"),
		transition: loop.NewPoller("transition"),
	}
}

// View returns a copy of the current round view.
func (r *Reconciler) View() View {
	v := r.view
	v.Guessed = append([]string(nil), r.view.Guessed...)
	v.Correct = append([]string(nil), r.view.Correct...)
	return v
}

func (r *Reconciler) Active() bool        { return r.active }
func (r *Reconciler) Transitioning() bool { return r.transitioning }
func (r *Reconciler) GameOver() bool      { return r.gameOver }
func (r *Reconciler) LocalOnly() bool     { return r.localOnly }

// Session returns the last observed session.
func (r *Reconciler) Session() models.Session {
	return r.session
}

// Reset stops every round timer and forgets the game.
func (r *Reconciler) Reset() {
	r.stopAll()
	r.session = models.Session{}
	r.view = View{}
	r.resetGuesses()
	r.secret = ""
	r.secretLocal = false
	r.serverMask = ""
	r.active = false
	r.transitioning = false
	r.gameOver = false
	r.localOnly = false
	r.failures = 0
	r.pendingRound = 0
	r.tracker.Reset(nil)
	r.picker.Reset()
}

func (r *Reconciler) resetGuesses() {
	r.guessed = make(map[rune]bool)
	r.correct = make(map[rune]bool)
	r.view.Guessed = nil
	r.view.Correct = nil
}

func (r *Reconciler) stopRoundPollers() {
	r.countdown.Stop()
	r.gameState.Stop()
	r.sync.Stop()
}

func (r *Reconciler) stopAll() {
	r.stopRoundPollers()
	r.nextRound.Stop()
	r.fallback.Stop()
	r.transition.Stop()
}

// BeginRound takes over a round whose mask is live on the server.
func (r *Reconciler) BeginRound(ctx context.Context, h models.RoundHandoff) {
	if r.gameOver {
		log.Debug().Int("round", h.Round).Msg("game over, ignoring round handoff")
		return
	}

	secret := ""
	if r.localOnly {
		secret = r.picker.Pick(len(h.Mask.MaskedWord))
	}
	r.begin(ctx, h, secret)
}

func (r *Reconciler) begin(ctx context.Context, h models.RoundHandoff, localSecret string) {
	if h.Session.ID != r.session.ID {
		r.tracker.Reset(h.Session.Players)
		r.emit.SetSession(h.Session.ID)
	} else {
		r.tracker.SyncFromSession(h.Session.Players)
	}
	r.session = h.Session

	r.stopAll()
	r.resetGuesses()

	duration := h.Duration
	if duration <= 0 {
		duration = r.cfg.DefaultRoundTime
	}
	r.view.Number = h.Round
	r.view.StartedAt = r.loop.Now()
	r.view.Duration = duration

	r.serverMask = h.Mask.MaskedWord
	r.view.Mask = ProjectMask(h.Mask.MaskedWord, r.guessed)
	if localSecret != "" && len(localSecret) != len(r.view.Mask) {
		r.view.Mask = models.HiddenMask(len(localSecret))
	}

	// Counters the server forgot to reset show up as zero before any guess.
	left := h.Mask.GuessesLeft
	if left <= 0 || left > r.cfg.MaxGuesses {
		left = r.cfg.MaxGuesses
	}
	r.view.GuessesLeft = left

	r.secret = ""
	r.secretLocal = false
	if localSecret != "" {
		r.secret = strings.ToUpper(localSecret)
		r.secretLocal = true
	} else {
		r.fetchSecret(ctx)
	}

	r.active = true
	r.transitioning = false
	r.pendingRound = 0

	log.Info().
		Str("session_id", r.session.ID).
		Int("round", r.view.Number).
		Int("mask_length", len(r.view.Mask)).
		Int("guesses_left", r.view.GuessesLeft).
		Bool("local_only", r.localOnly).
		Msg("round started")

	r.emit.RoundStarted(r.view.Number, r.view.Mask, r.view.GuessesLeft, r.timeLeft())
	r.emit.Word(r.view.Mask)
	r.emit.GuessesLeft(r.view.GuessesLeft)
	r.emit.GuessedLetters(nil)
	r.emit.TimeLeft(r.timeLeft())
	r.emit.Keyboard(true)
	r.emit.Scores(r.tracker.Snapshot())
	r.emit.Statusf("Round %d - guess a letter!", r.view.Number)

	r.countdown.Start(r.cfg.TickInterval, r.countdownTick)
	if !r.localOnly {
		r.gameState.Start(r.cfg.GameStatePollInterval, r.gameStateTick)
	}
	r.sync.Start(r.cfg.SyncInterval, r.syncTick)
}

// fetchSecret caches the round's word for local correctness checks. A word
// that cannot be behind the server mask is discarded.
func (r *Reconciler) fetchSecret(ctx context.Context) {
	sources := []struct {
		name  string
		fetch func(context.Context, string) (string, error)
	}{
		{"random", r.gw.GetRandomWord},
		{"next_round", r.gw.GetNewWordForNextRound},
	}
	for _, src := range sources {
		word, err := src.fetch(ctx, r.session.ID)
		if err != nil {
			log.Warn().Err(err).Str("source", src.name).Int("round", r.view.Number).Msg("could not fetch round word")
			continue
		}
		word = strings.ToUpper(strings.TrimSpace(word))
		if word == "" || !consistent(word, r.serverMask) {
			log.Debug().Str("source", src.name).Int("round", r.view.Number).Msg("fetched word does not match the mask, ignoring it")
			continue
		}
		r.secret = word
		return
	}
}

// ensureSecret falls back to a local word when no server word is known.
func (r *Reconciler) ensureSecret(ctx context.Context) bool {
	if r.secret != "" {
		return true
	}
	if !r.localOnly {
		r.fetchSecret(ctx)
		if r.secret != "" {
			return true
		}
	}
	word := r.picker.Pick(len(r.view.Mask))
	if word == "" {
		return false
	}
	log.Warn().Int("round", r.view.Number).Msg("no server word available, using a local word")
	r.secret = word
	r.secretLocal = true
	if len(word) != len(r.view.Mask) {
		r.view.Mask = models.HiddenMask(len(word))
	}
	return true
}

func (r *Reconciler) timeLeft() int {
	remaining := r.view.Duration - r.loop.Now().Sub(r.view.StartedAt)
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}

func (r *Reconciler) countdownTick(ctx context.Context) {
	if !r.active || r.gameOver {
		r.countdown.Stop()
		return
	}
	left := r.timeLeft()
	r.emit.TimeLeft(left)
	if left > 0 {
		return
	}
	complete := models.MaskComplete(r.view.Mask)
	reason := "Time's up!"
	if complete {
		reason = "Time's up - word complete!"
	}
	r.handleRoundEnd(ctx, complete, reason)
}

// SubmitLetterGuess resolves one guess. Duplicate guesses are ignored.
func (r *Reconciler) SubmitLetterGuess(ctx context.Context, input string) error {
	letter, ok := normalizeLetter(input)
	if !ok {
		return ErrInvalidLetter
	}
	if !r.active || r.transitioning || r.gameOver {
		return ErrRoundNotActive
	}
	if r.guessed[letter] {
		r.emit.Statusf("You already guessed %c", letter)
		return nil
	}

	r.guessed[letter] = true
	r.view.Guessed = append(r.view.Guessed, string(letter))
	r.emit.GuessedLetters(r.view.Guessed)

	before := r.view.GuessesLeft
	correct, known := false, false
	if r.secret != "" {
		correct, known = strings.ContainsRune(r.secret, letter), true
	}

	guessesAdopted := false
	if !r.localOnly {
		mask, err := r.submitRemote(ctx, letter)
		if err == nil {
			if adopted := r.adoptMask(mask.MaskedWord); adopted {
				if strings.ContainsRune(mask.MaskedWord, letter) {
					correct, known = true, true
				} else if r.secret == "" {
					// No trusted word left: the server mask decides.
					correct, known = false, true
				}
				// A wrong guess is reflected once the server spent exactly one guess on it.
				if !correct && mask.GuessesLeft == before-1 {
					r.view.GuessesLeft = mask.GuessesLeft
					guessesAdopted = true
				}
			}
		}
	}

	if !known {
		if r.ensureSecret(ctx) {
			correct = strings.ContainsRune(r.secret, letter)
		}
	}

	if correct {
		r.correct[letter] = true
		r.view.Correct = append(r.view.Correct, string(letter))
		if !strings.ContainsRune(r.view.Mask, letter) {
			r.view.Mask = revealLetter(r.view.Mask, r.secret, letter)
		}
	} else if !guessesAdopted {
		r.view.GuessesLeft = max(before-1, 0)
	}

	log.Debug().
		Int("round", r.view.Number).
		Str("letter", string(letter)).
		Bool("correct", correct).
		Int("guesses_left", r.view.GuessesLeft).
		Msg("guess resolved")

	r.emit.LetterDisabled(string(letter), correct)
	r.emit.Word(r.view.Mask)
	r.emit.GuessesLeft(r.view.GuessesLeft)

	complete := models.MaskComplete(r.view.Mask)
	if r.view.GuessesLeft <= 0 {
		reason := "Out of guesses!"
		if complete {
			reason = "Word complete!"
		}
		r.handleRoundEnd(ctx, complete, reason)
		return nil
	}
	if complete {
		r.emit.Status("Word complete! Keep going or end the round.")
	} else if correct {
		r.emit.Statusf("Good guess: %c", letter)
	} else {
		r.emit.Statusf("No %c in the word", letter)
	}
	return nil
}

// submitRemote sends a guess and re-reads the mask. Any failure is counted
// toward local-only mode.
func (r *Reconciler) submitRemote(ctx context.Context, letter rune) (models.WordMask, error) {
	err := r.gw.SubmitGuess(ctx, r.username, string(letter))
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrInvalidGuess):
		log.Warn().Str("reason", remote.Reason(err)).Str("letter", string(letter)).Msg("server rejected guess")
	default:
		r.noteFailure(err)
		return models.WordMask{}, err
	}

	mask, err := r.refreshMask(ctx)
	if err != nil {
		r.noteFailure(err)
		return models.WordMask{}, err
	}
	r.noteSuccess()
	return mask, nil
}

// refreshMask reads the mask, retrying while the server reports the game
// missing.
func (r *Reconciler) refreshMask(ctx context.Context) (models.WordMask, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaskRefreshRetries; attempt++ {
		mask, err := r.gw.GetWordMask(ctx, r.username)
		if err == nil {
			return mask, nil
		}
		lastErr = err
		if !errors.Is(err, remote.ErrGameNotFound) {
			break
		}
		log.Debug().Int("attempt", attempt).Msg("game not found while refreshing mask")
	}
	return models.WordMask{}, lastErr
}

// adoptMask merges a fresh server mask into the view. It returns false when
// the mask belongs to a different word.
func (r *Reconciler) adoptMask(raw string) bool {
	if raw == "" {
		return false
	}
	merged, ok := mergeMask(r.view.Mask, ProjectMask(raw, r.guessed))
	if !ok {
		log.Debug().
			Int("round", r.view.Number).
			Int("local_length", len(r.view.Mask)).
			Int("server_length", len(raw)).
			Msg("ignoring stale server mask")
		return false
	}
	r.serverMask = raw
	r.view.Mask = merged
	if r.secret != "" && !r.secretLocal && !consistent(r.secret, raw) {
		r.secret = ""
	}
	return true
}

func (r *Reconciler) noteFailure(err error) {
	r.failures++
	log.Warn().
		Err(err).
		Int("consecutive_failures", r.failures).
		Int("round", r.view.Number).
		Msg("remote call failed, continuing locally")
	if !r.localOnly && r.failures >= r.cfg.LocalOnlyAfter {
		r.localOnly = true
		log.Warn().Str("session_id", r.session.ID).Msg("switching to local-only play")
		r.emit.Status("Server unavailable - continuing offline")
	}
}

func (r *Reconciler) noteSuccess() {
	r.failures = 0
	// A round played on a local word stays local until it ends.
	if r.localOnly && !r.secretLocal {
		r.localOnly = false
		log.Info().Str("session_id", r.session.ID).Msg("server reachable again")
		if r.active {
			r.gameState.Start(r.cfg.GameStatePollInterval, r.gameStateTick)
		}
	}
}

// EndRoundEarly ends a round whose word is already fully revealed.
func (r *Reconciler) EndRoundEarly(ctx context.Context) error {
	if !r.active || r.transitioning || r.gameOver {
		return ErrRoundNotActive
	}
	if !models.MaskComplete(r.view.Mask) {
		return ErrWordIncomplete
	}
	r.handleRoundEnd(ctx, true, "Round ended early")
	return nil
}

func (r *Reconciler) gameStateTick(ctx context.Context) {
	if r.gameOver || !r.active {
		r.gameState.Stop()
		return
	}
	status, err := r.gw.GetGameStatus(ctx, r.username)
	if err != nil {
		if errors.Is(err, remote.ErrGameNotFound) {
			r.confirmSession(ctx)
			return
		}
		r.noteFailure(err)
		return
	}
	r.noteSuccess()
	if models.IsTerminalGameStatus(status) {
		r.endFromServerStatus(ctx, status)
	}
}

// confirmSession ends the game when the session is confirmed gone.
func (r *Reconciler) confirmSession(ctx context.Context) {
	_, found, err := r.gw.FindSession(ctx, r.session.ID)
	if err != nil {
		r.noteFailure(err)
		return
	}
	if !found {
		r.fatal(ctx, "Your game session no longer exists.")
	}
}

func (r *Reconciler) syncTick(ctx context.Context) {
	if r.gameOver || !r.active {
		r.sync.Stop()
		return
	}
	sess, found, err := r.gw.FindSession(ctx, r.session.ID)
	if err != nil {
		r.noteFailure(err)
		return
	}
	if !found {
		r.fatal(ctx, "Your game session no longer exists.")
		return
	}
	r.noteSuccess()
	r.session = sess
	r.tracker.SyncFromSession(sess.Players)
	r.emit.Scores(r.tracker.Snapshot())

	if v := r.tracker.Verdict(r.cfg.WinThreshold); v.Decided() {
		r.endGame(ctx, outcomeFromVerdict(v, "Win threshold reached"))
		return
	}

	if !r.localOnly {
		if server := r.probeServerRound(ctx); server > r.view.Number {
			log.Info().
				Int("local_round", r.view.Number).
				Int("server_round", server).
				Msg("server moved to a later round")
			r.handleRoundEnd(ctx, models.MaskComplete(r.view.Mask), "The round ended on the server")
		}
	}
}

// probeServerRound returns the latest round at or after the current one
// that has a start time on the server.
func (r *Reconciler) probeServerRound(ctx context.Context) int {
	latest := r.view.Number
	for next := r.view.Number + 1; next <= r.view.Number+3; next++ {
		raw, err := r.gw.GetRoundStartTime(ctx, r.session.ID, next)
		if err != nil || raw == "" {
			break
		}
		latest = next
	}
	return latest
}

// handleRoundEnd resolves the round once. Calls during a transition are
// ignored.
func (r *Reconciler) handleRoundEnd(ctx context.Context, won bool, reason string) {
	if r.transitioning || !r.active || r.gameOver {
		return
	}
	r.transitioning = true
	r.active = false
	r.stopRoundPollers()
	r.emit.Keyboard(false)

	word := r.secret
	if word == "" && models.MaskComplete(r.view.Mask) {
		word = r.view.Mask
	}
	if word != "" && !r.secretLocal && !r.localOnly {
		r.gw.MarkWordUsed(ctx, word, r.session.ID)
	}
	if word != "" {
		r.picker.MarkUsed(word)
	}

	if won {
		r.tracker.RecordRoundWin(r.username, r.view.Number)
	}

	res := models.RoundResult{Round: r.view.Number, Won: won, Word: word, Reason: reason}
	log.Info().
		Str("session_id", r.session.ID).
		Int("round", res.Round).
		Bool("won", won).
		Str("reason", reason).
		Msg("round ended")

	r.emit.RoundResult(res)
	r.emit.Scores(r.tracker.Snapshot())
	if won {
		r.emit.Statusf("%s You won round %d.", reason, res.Round)
	} else if word != "" {
		r.emit.Statusf("%s The word was %s.", reason, word)
	} else {
		r.emit.Status(reason)
	}
	if r.cb.RoundEnded != nil {
		r.cb.RoundEnded(ctx, res)
	}

	if v := r.tracker.Verdict(r.cfg.WinThreshold); v.Decided() {
		r.endGame(ctx, outcomeFromVerdict(v, "Win threshold reached"))
		return
	}

	next := r.view.Number + 1
	if !r.localOnly {
		if server := r.probeServerRound(ctx); server > next {
			next = server
		}
	}
	r.pendingRound = next
	r.awaitNextRound(ctx)
}

// awaitNextRound waits for the server to open the pending round, falling
// back to a fixed delay.
func (r *Reconciler) awaitNextRound(ctx context.Context) {
	if r.localOnly || r.roundExists(ctx, r.pendingRound) {
		r.startTransition()
		return
	}
	r.emit.Status("Waiting for the next round...")
	r.nextRound.Start(r.cfg.NextRoundPollInterval, func(ctx context.Context) {
		if r.gameOver || !r.transitioning {
			r.nextRound.Stop()
			return
		}
		if !r.roundExists(ctx, r.pendingRound) {
			return
		}
		r.nextRound.Stop()
		r.fallback.Stop()
		r.startTransition()
	})
	r.fallback.StartOnce(r.cfg.NextRoundFallback, func(ctx context.Context) {
		if r.gameOver || !r.transitioning {
			return
		}
		log.Warn().Int("round", r.pendingRound).Msg("next round not confirmed, continuing anyway")
		r.nextRound.Stop()
		r.startTransition()
	})
}

func (r *Reconciler) roundExists(ctx context.Context, round int) bool {
	raw, err := r.gw.GetRoundStartTime(ctx, r.session.ID, round)
	return err == nil && raw != ""
}

func (r *Reconciler) startTransition() {
	r.emit.Statusf("Round %d starts in %d seconds...", r.pendingRound, int(r.cfg.TransitionDelay.Seconds()))
	r.transition.StartOnce(r.cfg.TransitionDelay, r.finishTransition)
}

func (r *Reconciler) finishTransition(ctx context.Context) {
	if r.gameOver || !r.transitioning {
		return
	}
	next := r.pendingRound
	exists := r.roundExists(ctx, next)
	if r.localOnly && exists {
		log.Info().Int("round", next).Msg("server reachable again, leaving local-only play")
		r.localOnly = false
		r.failures = 0
	}
	if !r.localOnly && !exists {
		log.Warn().Int("round", next).Msg("round not confirmed by server, polling for it")
		r.emit.Statusf("Waiting for round %d...", next)
		r.nextRound.Start(r.cfg.NextRoundPollInterval, r.confirmTick)
		return
	}

	r.resetGuesses()
	r.view.Number = next
	r.view.Mask = ""
	r.view.GuessesLeft = r.cfg.MaxGuesses
	r.emit.GuessedLetters(nil)
	r.emit.GuessesLeft(r.view.GuessesLeft)
	r.emit.Word("")
	r.transitioning = false

	if r.localOnly {
		word := r.picker.Pick(0)
		h := models.RoundHandoff{
			Session:     r.session,
			Round:       next,
			Mask:        models.WordMask{MaskedWord: models.HiddenMask(len(word)), GuessesLeft: r.cfg.MaxGuesses},
			ServerStart: r.loop.Now(),
			Duration:    r.view.Duration,
		}
		r.begin(ctx, h, word)
		return
	}

	r.emit.Statusf("Waiting for round %d...", next)
	if r.cb.NextRound != nil {
		r.cb.NextRound(ctx, next, r.serverMask)
	}
}

// confirmTick holds a finished transition until the server opens the
// pending round. Losing the server falls back to local play.
func (r *Reconciler) confirmTick(ctx context.Context) {
	if r.gameOver || !r.transitioning {
		r.nextRound.Stop()
		return
	}
	status, err := r.gw.GetGameStatus(ctx, r.username)
	switch {
	case errors.Is(err, remote.ErrGameNotFound):
		r.confirmSession(ctx)
	case err != nil:
		r.noteFailure(err)
	default:
		r.noteSuccess()
		if models.IsTerminalGameStatus(status) {
			r.nextRound.Stop()
			r.endFromServerStatus(ctx, status)
			return
		}
	}
	if r.gameOver {
		return
	}
	if r.localOnly || r.roundExists(ctx, r.pendingRound) {
		r.nextRound.Stop()
		r.finishTransition(ctx)
	}
}

// endFromServerStatus ends the game after the server reported a terminal
// status.
func (r *Reconciler) endFromServerStatus(ctx context.Context, status string) {
	if status == models.GameStatusWon {
		r.endGame(ctx, models.GameOutcome{Winner: r.username, Reason: "Server reported a win"})
		return
	}
	if v := r.tracker.Verdict(r.cfg.WinThreshold); v.Decided() {
		r.endGame(ctx, outcomeFromVerdict(v, "Game finished"))
		return
	}
	leaders, wins := r.tracker.Leaders()
	outcome := models.GameOutcome{Reason: "Game finished"}
	switch {
	case wins == 0 || len(leaders) == 0:
	case len(leaders) == 1:
		outcome.Winner = leaders[0]
	default:
		outcome.Tie = true
		outcome.Tied = leaders
	}
	r.endGame(ctx, outcome)
}

// EndGame ends the game with an outcome decided outside the round, such as
// a terminal status seen while waiting for a round.
func (r *Reconciler) EndGame(ctx context.Context, status string) {
	r.endFromServerStatus(ctx, status)
}

func outcomeFromVerdict(v score.Verdict, reason string) models.GameOutcome {
	o := models.GameOutcome{Winner: v.Winner, Tie: v.Tie, Reason: reason}
	if v.Tie {
		o.Tied = append([]string(nil), v.Contenders...)
	}
	return o
}

// endGame produces the game outcome once.
func (r *Reconciler) endGame(ctx context.Context, outcome models.GameOutcome) {
	if r.gameOver {
		return
	}
	r.gameOver = true
	r.active = false
	r.transitioning = false
	r.stopAll()

	outcome.SessionID = r.session.ID
	outcome.Tally = r.tracker.Snapshot()
	outcome.Rounds = r.view.Number
	outcome.EndedAt = r.loop.Now()

	headline := outcome.Headline(r.username)
	log.Info().
		Str("session_id", outcome.SessionID).
		Str("winner", outcome.Winner).
		Bool("tie", outcome.Tie).
		Int("rounds", outcome.Rounds).
		Msg("game ended")

	r.emit.Keyboard(false)
	r.emit.GameEnded(outcome, headline)
	r.emit.Status(headline)
	if r.cb.GameEnded != nil {
		r.cb.GameEnded(ctx, outcome)
	}
}

func (r *Reconciler) fatal(ctx context.Context, reason string) {
	if r.gameOver {
		return
	}
	r.gameOver = true
	r.active = false
	r.transitioning = false
	r.stopAll()
	log.Error().Str("session_id", r.session.ID).Str("reason", reason).Msg("game aborted")
	if r.cb.Fatal != nil {
		r.cb.Fatal(ctx, reason)
	}
}
