// Package account handles player registration, login and the leaderboard.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/rs/zerolog/log"
)

var ErrNotLoggedIn = errors.New("not logged in")

// LoginService defines what the app needs from the login service group
type LoginService interface {
	CreatePlayer(ctx context.Context, username, password string) error
	LoginPlayer(ctx context.Context, username, password string) (models.LoginResult, error)
	LogoutPlayer(ctx context.Context, sessionToken string) error
}

// LeaderboardService defines what the app needs from the leaderboard
type LeaderboardService interface {
	GetTopPlayers(ctx context.Context) ([]models.Player, error)
}

// App handles account business logic
type App struct {
	login LoginService
	board LeaderboardService

	mu      sync.Mutex
	current *models.LoginResult
}

// NewApp creates a new account App
func NewApp(login LoginService, board LeaderboardService) *App {
	return &App{
		login: login,
		board: board,
	}
}

// Register creates a player account.
func (a *App) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := a.login.CreatePlayer(ctx, username, password); err != nil {
		return fmt.Errorf("failed to register %s: %w", username, err)
	}

	log.Info().Str("username", username).Msg("player registered")
	return nil
}

// Login authenticates the player and remembers the session token.
func (a *App) Login(ctx context.Context, username, password string) (models.LoginResult, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return models.LoginResult{}, fmt.Errorf("validation failed: %w", err)
	}

	res, err := a.login.LoginPlayer(ctx, username, password)
	if err != nil {
		return models.LoginResult{}, fmt.Errorf("failed to log in %s: %w", username, err)
	}
	if res.Username == "" {
		res.Username = username
	}

	a.mu.Lock()
	a.current = &res
	a.mu.Unlock()

	log.Info().Str("username", res.Username).Msg("player logged in")
	return res, nil
}

// LoginOrRegister logs in, creating the account first when the server does
// not know the credentials and autoRegister is set.
func (a *App) LoginOrRegister(ctx context.Context, username, password string, autoRegister bool) (models.LoginResult, error) {
	res, err := a.Login(ctx, username, password)
	if err == nil || !autoRegister || !errors.Is(err, remote.ErrInvalidCredentials) {
		return res, err
	}

	if err := a.Register(ctx, username, password); err != nil {
		return models.LoginResult{}, err
	}
	return a.Login(ctx, username, password)
}

// Logout ends the current login session.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil {
		return ErrNotLoggedIn
	}

	if err := a.login.LogoutPlayer(ctx, current.SessionToken); err != nil {
		return fmt.Errorf("failed to log out %s: %w", current.Username, err)
	}

	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()

	log.Info().Str("username", current.Username).Msg("player logged out")
	return nil
}

// Current returns the logged in player, if any.
func (a *App) Current() (models.LoginResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return models.LoginResult{}, false
	}
	return *a.current, true
}

// TopPlayers returns at most limit players ordered by wins, then name.
func (a *App) TopPlayers(ctx context.Context, limit int) ([]models.Player, error) {
	players, err := a.board.GetTopPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get top players: %w", err)
	}

	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Wins != players[j].Wins {
			return players[i].Wins > players[j].Wins
		}
		return players[i].Username < players[j].Username
	})
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}

func validateCredentials(username, password string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsAny(username, " \t\n") {
		return fmt.Errorf("username must not contain whitespace")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
