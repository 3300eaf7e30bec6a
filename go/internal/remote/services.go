package remote

import (
	"context"

	"github.com/mcdev12/wordgame/go/internal/models"
)

// SessionService covers matchmaking.
type SessionService interface {
	JoinOrCreateGameSession(ctx context.Context, username string) (string, error)
	ListActiveGameSessions(ctx context.Context) ([]models.Session, error)
}

// GameService covers gameplay within a session.
type GameService interface {
	// RequestToJoinGame raises ErrNoOpponentFound while the session lacks players.
	RequestToJoinGame(ctx context.Context, username string) error
	// GetWordMask raises ErrGameNotFound.
	GetWordMask(ctx context.Context, username string) (models.WordMask, error)
	// SubmitGuess raises ErrInvalidGuess and ErrGameNotFound.
	SubmitGuess(ctx context.Context, username, letter string) error
	// GetGameStatus raises ErrGameNotFound.
	GetGameStatus(ctx context.Context, username string) (string, error)
	// GetRoundStartTime returns an empty string for rounds that have not started.
	GetRoundStartTime(ctx context.Context, sessionID string, round int) (string, error)
	// GetRoundDuration returns the round length in seconds.
	GetRoundDuration(ctx context.Context, sessionID string) (int, error)
}

// WordService covers secret word selection.
type WordService interface {
	GetRandomWord(ctx context.Context, sessionID string) (string, error)
	MarkWordAsUsed(ctx context.Context, word, sessionID string) error
	GetNewWordForNextRound(ctx context.Context, sessionID string) (string, error)
}

// AdminService exposes server wide timing configuration in seconds.
type AdminService interface {
	GetWaitTime(ctx context.Context) (int, error)
	GetRoundTime(ctx context.Context) (int, error)
	UpdateWaitTime(ctx context.Context, seconds int) error
	UpdateRoundTime(ctx context.Context, seconds int) error
}

// LeaderboardService tracks lifetime game wins.
type LeaderboardService interface {
	GetTopPlayers(ctx context.Context) ([]models.Player, error)
	IncrementWins(ctx context.Context, username string) error
}

// LoginService covers player accounts.
type LoginService interface {
	// CreatePlayer raises ErrAlreadyExists.
	CreatePlayer(ctx context.Context, username, password string) error
	// LoginPlayer raises ErrInvalidCredentials and ErrAlreadyLoggedIn.
	LoginPlayer(ctx context.Context, username, password string) (models.LoginResult, error)
	// LogoutPlayer raises ErrNotFound for unknown tokens.
	LogoutPlayer(ctx context.Context, sessionToken string) error
}

// Services bundles every remote service group.
type Services struct {
	Sessions    SessionService
	Games       GameService
	Words       WordService
	Admin       AdminService
	Leaderboard LeaderboardService
	Login       LoginService
}

// Backend is implemented by anything serving every service group.
type Backend interface {
	SessionService
	GameService
	WordService
	AdminService
	LeaderboardService
	LoginService
}

// ServicesFrom binds every service group to one backend.
func ServicesFrom(b Backend) Services {
	return Services{
		Sessions:    b,
		Games:       b,
		Words:       b,
		Admin:       b,
		Leaderboard: b,
		Login:       b,
	}
}
