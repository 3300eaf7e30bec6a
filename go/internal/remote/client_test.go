package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/remote/memserver"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := remote.DefaultClientConfig(srv.URL)
	cfg.CallTimeout = 2 * time.Second
	cfg.RetryBackoff = scheduler.Backoff{Base: time.Millisecond, Factor: 1.5, Max: 5 * time.Millisecond}
	return remote.NewClientWithHTTP(srv.Client(), cfg)
}

func TestClientRoundTripAgainstServer(t *testing.T) {
	ctx := context.Background()
	backend := memserver.New(clockwork.NewFakeClock(), memserver.DefaultConfig())
	client := newTestClient(t, memserver.NewHandler(backend))

	idA, err := client.JoinOrCreateGameSession(ctx, "alice")
	require.NoError(t, err)
	idB, err := client.JoinOrCreateGameSession(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, idA, idB)

	sessions, err := client.ListActiveGameSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusWaiting, sessions[0].Status)
	assert.Equal(t, []string{"alice", "bob"}, sessions[0].Players)

	require.NoError(t, client.RequestToJoinGame(ctx, "alice"))
	status, err := client.GetGameStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "PLAYING", status)

	backend.SetWord(idA, "HANGMAN")
	require.NoError(t, client.SubmitGuess(ctx, "alice", "a"))

	mask, err := client.GetWordMask(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "_A___A_", mask.MaskedWord)
	assert.Equal(t, 5, mask.GuessesLeft)

	start, err := client.GetRoundStartTime(ctx, idA, 1)
	require.NoError(t, err)
	_, err = models.ParseServerTime(start)
	assert.NoError(t, err)

	next, err := client.GetRoundStartTime(ctx, idA, 2)
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestClientMapsDomainExceptions(t *testing.T) {
	ctx := context.Background()
	backend := memserver.New(clockwork.NewFakeClock(), memserver.DefaultConfig())
	client := newTestClient(t, memserver.NewHandler(backend))

	_, err := client.JoinOrCreateGameSession(ctx, "alice")
	require.NoError(t, err)

	err = client.RequestToJoinGame(ctx, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrNoOpponentFound)
	assert.Equal(t, "waiting for an opponent", remote.Reason(err))

	_, err = client.GetWordMask(ctx, "nobody")
	assert.ErrorIs(t, err, remote.ErrGameNotFound)
	assert.False(t, remote.IsTransport(err))

	require.NoError(t, client.CreatePlayer(ctx, "carol", "pw"))
	assert.ErrorIs(t, client.CreatePlayer(ctx, "carol", "pw"), remote.ErrAlreadyExists)

	_, err = client.LoginPlayer(ctx, "carol", "wrong")
	assert.ErrorIs(t, err, remote.ErrInvalidCredentials)

	_, err = client.LoginPlayer(ctx, "carol", "pw")
	require.NoError(t, err)
	_, err = client.LoginPlayer(ctx, "carol", "pw")
	assert.ErrorIs(t, err, remote.ErrAlreadyLoggedIn)
}

func TestClientRetriesTransportFailures(t *testing.T) {
	ctx := context.Background()
	backend := memserver.New(clockwork.NewFakeClock(), memserver.DefaultConfig())
	inner := memserver.NewHandler(backend)

	var failures atomic.Int32
	failures.Store(2)
	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(-1) >= 0 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	})
	client := newTestClient(t, flaky)

	secs, err := client.GetWaitTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, secs)
}

func TestClientSurfacesTransportErrorAfterRetries(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	down := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	client := newTestClient(t, down)

	_, err := client.GetRoundTime(ctx)
	require.Error(t, err)
	assert.True(t, remote.IsTransport(err))
	assert.Equal(t, int32(4), calls.Load())
}
