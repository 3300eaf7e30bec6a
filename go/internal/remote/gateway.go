package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultBestEffortTimeout bounds one best-effort call.
const DefaultBestEffortTimeout = 5 * time.Second

// Gateway is the typed wrapper the game client uses for every remote call.
// Domain exceptions are returned as *Error, transport failures as
// *TransportError. Best-effort operations never return an error and never
// block the caller.
type Gateway struct {
	services Services

	run     func(func())
	timeout time.Duration
	pending sync.WaitGroup
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithBestEffortTimeout bounds each best-effort call.
func WithBestEffortTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBestEffortRunner replaces the goroutine used for best-effort calls.
func WithBestEffortRunner(run func(func())) GatewayOption {
	return func(g *Gateway) {
		if run != nil {
			g.run = run
		}
	}
}

// RunInline runs best-effort calls on the caller's goroutine.
func RunInline(f func()) { f() }

// NewGateway creates a gateway over the given service groups.
func NewGateway(services Services, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		services: services,
		run:      func(f func()) { go f() },
		timeout:  DefaultBestEffortTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until every best-effort call in flight has returned.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

// bestEffort runs fn with its own deadline. The caller's values are kept
// but its cancellation is not.
func (g *Gateway) bestEffort(ctx context.Context, fn func(ctx context.Context)) {
	g.pending.Add(1)
	ctx = context.WithoutCancel(ctx)
	g.run(func() {
		defer g.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		fn(ctx)
	})
}

// JoinOrCreateSession joins a waiting session or creates a new one.
func (g *Gateway) JoinOrCreateSession(ctx context.Context, username string) (string, error) {
	id, err := g.services.Sessions.JoinOrCreateGameSession(ctx, username)
	if err != nil {
		return "", fmt.Errorf("join or create session: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("join or create session: server returned empty session id")
	}
	return id, nil
}

// ListActiveSessions returns every session the server considers active.
func (g *Gateway) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	sessions, err := g.services.Sessions.ListActiveGameSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// FindSession locates a session by id in the active list.
func (g *Gateway) FindSession(ctx context.Context, sessionID string) (models.Session, bool, error) {
	sessions, err := g.ListActiveSessions(ctx)
	if err != nil {
		return models.Session{}, false, err
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			return s, true, nil
		}
	}
	return models.Session{}, false, nil
}

// RequestToJoin asks the server to start the game. ErrNoOpponentFound is
// returned while no opponent has joined.
func (g *Gateway) RequestToJoin(ctx context.Context, username string) error {
	if err := g.services.Games.RequestToJoinGame(ctx, username); err != nil {
		return fmt.Errorf("request to join: %w", err)
	}
	return nil
}

// GetWordMask returns the raw server mask for the player.
func (g *Gateway) GetWordMask(ctx context.Context, username string) (models.WordMask, error) {
	mask, err := g.services.Games.GetWordMask(ctx, username)
	if err != nil {
		return models.WordMask{}, fmt.Errorf("get word mask: %w", err)
	}
	mask.MaskedWord = strings.ToUpper(strings.TrimSpace(mask.MaskedWord))
	return mask, nil
}

// SubmitGuess submits one letter.
func (g *Gateway) SubmitGuess(ctx context.Context, username, letter string) error {
	if err := g.services.Games.SubmitGuess(ctx, username, letter); err != nil {
		return fmt.Errorf("submit guess %q: %w", letter, err)
	}
	return nil
}

// GetGameStatus returns the server game status for the player, uppercased.
func (g *Gateway) GetGameStatus(ctx context.Context, username string) (string, error) {
	status, err := g.services.Games.GetGameStatus(ctx, username)
	if err != nil {
		return "", fmt.Errorf("get game status: %w", err)
	}
	return strings.ToUpper(strings.TrimSpace(status)), nil
}

// GetRoundStartTime returns the raw start timestamp of a round, or "" when
// the round has not started.
func (g *Gateway) GetRoundStartTime(ctx context.Context, sessionID string, round int) (string, error) {
	start, err := g.services.Games.GetRoundStartTime(ctx, sessionID, round)
	if err != nil {
		return "", fmt.Errorf("get round %d start time: %w", round, err)
	}
	return strings.TrimSpace(start), nil
}

// GetRoundDuration returns the configured round length for a session.
func (g *Gateway) GetRoundDuration(ctx context.Context, sessionID string) (time.Duration, error) {
	secs, err := g.services.Games.GetRoundDuration(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("get round duration: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

// GetRandomWord fetches the session's current word, uppercased.
func (g *Gateway) GetRandomWord(ctx context.Context, sessionID string) (string, error) {
	word, err := g.services.Words.GetRandomWord(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("get random word: %w", err)
	}
	return strings.ToUpper(strings.TrimSpace(word)), nil
}

// GetNewWordForNextRound asks the word service for the next round's word.
func (g *Gateway) GetNewWordForNextRound(ctx context.Context, sessionID string) (string, error) {
	word, err := g.services.Words.GetNewWordForNextRound(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("get new word for next round: %w", err)
	}
	return strings.ToUpper(strings.TrimSpace(word)), nil
}

// MarkWordUsed is best-effort: it runs in the background and failures are
// logged and swallowed.
func (g *Gateway) MarkWordUsed(ctx context.Context, word, sessionID string) {
	if word == "" {
		return
	}
	g.bestEffort(ctx, func(ctx context.Context) {
		if err := g.services.Words.MarkWordAsUsed(ctx, word, sessionID); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("word", word).
				Msg("failed to mark word as used")
		}
	})
}

// GetWaitTime returns the matchmaking wait timeout.
func (g *Gateway) GetWaitTime(ctx context.Context) (time.Duration, error) {
	secs, err := g.services.Admin.GetWaitTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("get wait time: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

// GetRoundTime returns the server wide round duration.
func (g *Gateway) GetRoundTime(ctx context.Context) (time.Duration, error) {
	secs, err := g.services.Admin.GetRoundTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("get round time: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

// IncrementWins is best-effort: it runs in the background and failures are
// logged and swallowed.
func (g *Gateway) IncrementWins(ctx context.Context, username string) {
	g.bestEffort(ctx, func(ctx context.Context) {
		if err := g.services.Leaderboard.IncrementWins(ctx, username); err != nil {
			log.Warn().Err(err).Str("username", username).Msg("failed to increment leaderboard wins")
		}
	})
}
