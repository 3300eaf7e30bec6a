package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Kind identifies what a notification updates.
type Kind string

const (
	KindStatus         Kind = "status"
	KindWord           Kind = "word"
	KindGuessesLeft    Kind = "guesses_left"
	KindTimeLeft       Kind = "time_left"
	KindGuessedLetters Kind = "guessed_letters"
	KindLetterDisabled Kind = "letter_disabled"
	KindKeyboard       Kind = "keyboard"
	KindRoundStarted   Kind = "round_started"
	KindRoundResult    Kind = "round_result"
	KindScores         Kind = "scores"
	KindMatchmaking    Kind = "matchmaking"
	KindGameEnded      Kind = "game_ended"
	KindErrorDialog    Kind = "error_dialog"
	KindNavigateToMenu Kind = "navigate_menu"
	KindLeaderboard    Kind = "leaderboard"
)

// Notification is one state change for the UI layer to render. Only the
// fields relevant to Kind are set.
type Notification struct {
	ID          uuid.UUID           `json:"id"`
	Kind        Kind                `json:"kind"`
	At          time.Time           `json:"at"`
	SessionID   string              `json:"session_id,omitempty"`
	Text        string              `json:"text,omitempty"`
	Title       string              `json:"title,omitempty"`
	Word        string              `json:"word,omitempty"`
	GuessesLeft *int                `json:"guesses_left,omitempty"`
	TimeLeft    *int                `json:"time_left,omitempty"`
	Letters     []string            `json:"letters,omitempty"`
	Letter      string              `json:"letter,omitempty"`
	Correct     *bool               `json:"correct,omitempty"`
	Enabled     *bool               `json:"enabled,omitempty"`
	Round       int                 `json:"round,omitempty"`
	State       string              `json:"state,omitempty"`
	Scores      map[string]int      `json:"scores,omitempty"`
	Result      *models.RoundResult `json:"result,omitempty"`
	Outcome     *models.GameOutcome `json:"outcome,omitempty"`
	Players     []models.Player     `json:"players,omitempty"`
}

// New creates a notification stamped with a fresh id.
func New(kind Kind, at time.Time) Notification {
	return Notification{ID: uuid.New(), Kind: kind, At: at}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// Sink receives notifications. Publish is called on the game loop and must
// not block.
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Publish(n Notification) { f(n) }

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Publish(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Publish(n)
		}
	}
}

// Channel is a buffered channel sink. Notifications are dropped when the
// buffer is full.
type Channel struct {
	C chan Notification
}

// NewChannel creates a channel sink with the given buffer size.
func NewChannel(size int) *Channel {
	return &Channel{C: make(chan Notification, size)}
}

func (c *Channel) Publish(n Notification) {
	select {
	case c.C <- n:
	default:
		log.Warn().Str("kind", string(n.Kind)).Msg("notification channel full, dropping notification")
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns every recorded notification.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// OfKind returns recorded notifications of one kind.
func (r *Recorder) OfKind(kind Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification of a kind.
func (r *Recorder) Last(kind Kind) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.all) - 1; i >= 0; i-- {
		if r.all[i].Kind == kind {
			return r.all[i], true
		}
	}
	return Notification{}, false
}

// Reset forgets every recorded notification.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = nil
}
