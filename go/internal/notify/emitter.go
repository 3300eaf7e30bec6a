package notify

import (
	"fmt"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Emitter builds and publishes notifications for one game client.
type Emitter struct {
	sink      Sink
	now       func() time.Time
	sessionID string
}

// NewEmitter creates an emitter. A nil sink discards everything.
func NewEmitter(sink Sink, now func() time.Time) *Emitter {
	if sink == nil {
		sink = SinkFunc(func(Notification) {})
	}
	if now == nil {
		now = time.Now
	}
	return &Emitter{sink: sink, now: now}
}

// SetSession stamps subsequent notifications with a session id.
func (e *Emitter) SetSession(id string) {
	e.sessionID = id
}

func (e *Emitter) publish(n Notification) {
	n.SessionID = e.sessionID
	e.sink.Publish(n)
}

func (e *Emitter) base(kind Kind) Notification {
	return New(kind, e.now())
}

// Status updates the status line.
func (e *Emitter) Status(text string) {
	log.Debug().Str("status", text).Msg("status update")
	n := e.base(KindStatus)
	n.Text = text
	e.publish(n)
}

// Statusf is Status with formatting.
func (e *Emitter) Statusf(format string, args ...any) {
	e.Status(fmt.Sprintf(format, args...))
}

// Word updates the masked word display.
func (e *Emitter) Word(mask string) {
	n := e.base(KindWord)
	n.Word = mask
	e.publish(n)
}

func (e *Emitter) GuessesLeft(left int) {
	n := e.base(KindGuessesLeft)
	n.GuessesLeft = IntPtr(left)
	e.publish(n)
}

func (e *Emitter) TimeLeft(seconds int) {
	n := e.base(KindTimeLeft)
	n.TimeLeft = IntPtr(seconds)
	e.publish(n)
}

func (e *Emitter) GuessedLetters(letters []string) {
	n := e.base(KindGuessedLetters)
	n.Letters = append([]string{}, letters...)
	e.publish(n)
}

func (e *Emitter) LetterDisabled(letter string, correct bool) {
	n := e.base(KindLetterDisabled)
	n.Letter = letter
	n.Correct = BoolPtr(correct)
	e.publish(n)
}

func (e *Emitter) Keyboard(enabled bool) {
	n := e.base(KindKeyboard)
	n.Enabled = BoolPtr(enabled)
	e.publish(n)
}

func (e *Emitter) RoundStarted(round int, mask string, guessesLeft, timeLeft int) {
	n := e.base(KindRoundStarted)
	n.Round = round
	n.Word = mask
	n.GuessesLeft = IntPtr(guessesLeft)
	n.TimeLeft = IntPtr(timeLeft)
	e.publish(n)
}

func (e *Emitter) RoundResult(res models.RoundResult) {
	n := e.base(KindRoundResult)
	n.Round = res.Round
	n.Result = &res
	e.publish(n)
}

func (e *Emitter) Scores(scores map[string]int) {
	n := e.base(KindScores)
	n.Scores = scores
	e.publish(n)
}

// Matchmaking reports a matchmaking state change.
func (e *Emitter) Matchmaking(state, text string) {
	n := e.base(KindMatchmaking)
	n.State = state
	n.Text = text
	e.publish(n)
}

func (e *Emitter) GameEnded(outcome models.GameOutcome, headline string) {
	n := e.base(KindGameEnded)
	n.Outcome = &outcome
	n.Text = headline
	n.Scores = outcome.Tally
	e.publish(n)
}

func (e *Emitter) ErrorDialog(title, message string) {
	log.Warn().Str("title", title).Str("message", message).Msg("error dialog")
	n := e.base(KindErrorDialog)
	n.Title = title
	n.Text = message
	e.publish(n)
}

func (e *Emitter) NavigateToMenu() {
	e.publish(e.base(KindNavigateToMenu))
}

func (e *Emitter) Leaderboard(players []models.Player) {
	n := e.base(KindLeaderboard)
	n.Players = players
	e.publish(n)
}
