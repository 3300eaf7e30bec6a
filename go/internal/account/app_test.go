package account

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/remote/memserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *memserver.Server) {
	t.Helper()
	srv := memserver.New(clockwork.NewFakeClock(), memserver.DefaultConfig())
	return NewApp(srv, srv), srv
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)

	require.NoError(t, app.Register(ctx, " alice ", "secret"))

	err := app.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, remote.ErrAlreadyExists)

	res, err := app.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.NotEmpty(t, res.SessionToken)

	current, ok := app.Current()
	require.True(t, ok)
	assert.Equal(t, res, current)
}

func TestLoginErrors(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)
	require.NoError(t, app.Register(ctx, "alice", "secret"))

	_, err := app.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, remote.ErrInvalidCredentials)

	_, err = app.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = app.Login(ctx, "alice", "secret")
	assert.ErrorIs(t, err, remote.ErrAlreadyLoggedIn)

	_, err = app.Login(ctx, "", "secret")
	assert.Error(t, err)
}

func TestLoginOrRegister(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)

	_, err := app.LoginOrRegister(ctx, "bob", "pw", false)
	assert.ErrorIs(t, err, remote.ErrInvalidCredentials)

	res, err := app.LoginOrRegister(ctx, "bob", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Username)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)

	assert.ErrorIs(t, app.Logout(ctx), ErrNotLoggedIn)

	_, err := app.LoginOrRegister(ctx, "alice", "secret", true)
	require.NoError(t, err)
	require.NoError(t, app.Logout(ctx))

	_, ok := app.Current()
	assert.False(t, ok)

	// A fresh login works again once logged out.
	_, err = app.Login(ctx, "alice", "secret")
	assert.NoError(t, err)
}

type fakeBoard struct {
	players []models.Player
	err     error
}

func (f fakeBoard) GetTopPlayers(context.Context) ([]models.Player, error) {
	return f.players, f.err
}

func TestTopPlayersSortedAndLimited(t *testing.T) {
	board := fakeBoard{players: []models.Player{
		{Username: "carol", Wins: 1},
		{Username: "bob", Wins: 4},
		{Username: "alice", Wins: 4},
		{Username: "dave", Wins: 0},
	}}
	app := NewApp(nil, board)

	got, err := app.TopPlayers(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []models.Player{
		{Username: "alice", Wins: 4},
		{Username: "bob", Wins: 4},
		{Username: "carol", Wins: 1},
	}, got)

	boom := errors.New("down")
	_, err = NewApp(nil, fakeBoard{err: boom}).TopPlayers(context.Background(), 3)
	assert.ErrorIs(t, err, boom)
}

func TestTopPlayersFromServerCountsWins(t *testing.T) {
	ctx := context.Background()
	app, srv := newTestApp(t)
	require.NoError(t, app.Register(ctx, "alice", "a"))
	require.NoError(t, app.Register(ctx, "bob", "b"))
	require.NoError(t, srv.IncrementWins(ctx, "bob"))

	got, err := app.TopPlayers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Player{Username: "bob", Wins: 1}, got[0])
}
