package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/mcdev12/wordgame/go/internal/remote/memserver"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type player struct {
	coord    *Coordinator
	rec      *notify.Recorder
	handoffs []models.RoundHandoff
	failures []State
	gameOver []string
}

type harness struct {
	ctx   context.Context
	clock *clockwork.FakeClock
	loop  *scheduler.Loop
	srv   *memserver.Server
	gw    *remote.Gateway
}

func newHarness(t *testing.T, cfg memserver.Config) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	srv := memserver.New(clock, cfg)
	return &harness{
		ctx:   context.Background(),
		clock: clock,
		loop:  scheduler.NewLoop(clock),
		srv:   srv,
		gw:    remote.NewGateway(remote.ServicesFrom(srv)),
	}
}

func (h *harness) newPlayer(username string) *player {
	p := &player{rec: &notify.Recorder{}}
	emit := notify.NewEmitter(p.rec, h.clock.Now)
	p.coord = NewCoordinator(DefaultConfig(), h.gw, h.loop, emit, username, Callbacks{
		RoundReady: func(_ context.Context, ho models.RoundHandoff) { p.handoffs = append(p.handoffs, ho) },
		Failed:     func(_ context.Context, s State, _ string) { p.failures = append(p.failures, s) },
		GameOver:   func(_ context.Context, status string) { p.gameOver = append(p.gameOver, status) },
	})
	return p
}

// step advances the clock and runs everything that became due.
func (h *harness) step(d time.Duration) {
	h.clock.Advance(d)
	h.loop.RunDue(h.ctx)
}

func TestTwoPlayersReachRoundWithoutTimeout(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	assert.Equal(t, StateLobbyPolling, alice.coord.State())

	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	require.Equal(t, alice.coord.SessionID(), bob.coord.SessionID())

	for i := 0; i < 3; i++ {
		h.step(time.Second)
	}

	for _, p := range []*player{alice, bob} {
		assert.Equal(t, StateActive, p.coord.State())
		assert.Empty(t, p.failures)
		require.Len(t, p.handoffs, 1)
		assert.Equal(t, 1, p.handoffs[0].Round)
		assert.Equal(t, "_______", p.handoffs[0].Mask.MaskedWord)
		assert.Equal(t, 30*time.Second, p.handoffs[0].Duration)
		assert.ElementsMatch(t, []string{"alice", "bob"}, p.handoffs[0].Session.Players)
	}

	// Every matchmaking poller is idle once the round is handed off.
	assert.Empty(t, h.loop.ActiveTimers())
}

func TestLobbyTimesOutAlone(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	for i := 0; i < 9; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, StateLobbyPolling, alice.coord.State())

	h.step(time.Second)
	assert.Equal(t, StateTimeout, alice.coord.State())
	assert.Equal(t, []State{StateTimeout}, alice.failures)
	assert.Empty(t, h.loop.ActiveTimers())

	last, ok := alice.rec.Last(notify.KindStatus)
	require.True(t, ok)
	assert.Contains(t, last.Text, "No opponent found")
}

func TestWaitTimeChangeRestartsLobbyClock(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	for i := 0; i < 8; i++ {
		h.step(time.Second)
	}
	require.NoError(t, h.srv.UpdateWaitTime(h.ctx, 20))

	for i := 0; i < 10; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, StateLobbyPolling, alice.coord.State())
	assert.Equal(t, 20*time.Second, alice.coord.WaitTime())
}

func TestTransientLobbyFailuresAreAbsorbed(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	h.srv.InjectTransportFault("ListActiveGameSessions", 3)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)
	h.step(time.Second)
	h.step(time.Second)
	assert.Equal(t, StateLobbyPolling, alice.coord.State())
	assert.Empty(t, alice.failures)
}

func TestPersistentLobbyFailuresEndInError(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	h.srv.InjectTransportFault("ListActiveGameSessions", -1)
	h.loop.RunDue(h.ctx)
	for i := 0; i < 6; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, StateError, alice.coord.State())
	assert.Equal(t, []State{StateError}, alice.failures)
}

func TestSessionCreationFailureIsError(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	h.srv.InjectTransportFault("JoinOrCreateGameSession", 1)

	alice.coord.Start(h.ctx)
	assert.Equal(t, StateError, alice.coord.State())

	assert.True(t, alice.coord.Retry(h.ctx))
	assert.Equal(t, StateLobbyPolling, alice.coord.State())
}

func TestFinishedSessionRetriesInitialization(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	first := alice.coord.SessionID()
	h.srv.SetStatus(first, models.SessionStatusFinished)
	h.loop.RunDue(h.ctx)

	assert.Equal(t, StateSessionCreating, alice.coord.State())
	assert.Equal(t, []string{"init-retry"}, h.loop.ActiveTimers())

	h.step(time.Second)
	assert.Equal(t, StateLobbyPolling, alice.coord.State())
	assert.NotEqual(t, first, alice.coord.SessionID())
}

func TestFutureRoundStartDelaysMaskPolling(t *testing.T) {
	cfg := memserver.DefaultConfig()
	cfg.StartDelay = 5 * time.Second
	h := newHarness(t, cfg)
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)

	assert.Equal(t, StateRoundPolling, alice.coord.State())
	assert.Zero(t, h.srv.Calls("GetWordMask"))

	h.step(3 * time.Second)
	assert.Empty(t, alice.handoffs)

	h.step(time.Second)
	require.Len(t, alice.handoffs, 1)
	require.Len(t, bob.handoffs, 1)

	raw, err := h.gw.GetRoundStartTime(h.ctx, alice.coord.SessionID(), 1)
	require.NoError(t, err)
	want, err := models.ParseServerTime(raw)
	require.NoError(t, err)
	assert.True(t, alice.handoffs[0].ServerStart.Equal(want))
}

func TestUnchangedMaskWaitsForServerToOpenRound(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)
	require.Len(t, alice.handoffs, 1)

	// The server is still on round 1, so its mask must not start round 2.
	sessionID := alice.coord.SessionID()
	prev := alice.handoffs[0].Mask.MaskedWord
	alice.coord.PollRound(h.ctx, 2, prev)
	h.loop.RunDue(h.ctx)
	for i := 0; i < 4; i++ {
		h.step(time.Second)
	}
	assert.Len(t, alice.handoffs, 1)
	assert.Equal(t, StateRoundPolling, alice.coord.State())
	assert.Equal(t, 1, h.srv.Round(sessionID))

	// The next word has the same length, so only the round start time tells
	// the masks apart.
	require.NoError(t, h.srv.MarkWordAsUsed(h.ctx, h.srv.Word(sessionID), sessionID))
	h.step(time.Second)
	require.Len(t, alice.handoffs, 2)
	assert.Equal(t, 2, alice.handoffs[1].Round)
	assert.Equal(t, prev, alice.handoffs[1].Mask.MaskedWord)
	assert.Equal(t, StateActive, alice.coord.State())
}

func TestUnchangedMaskFailsWhenBudgetRunsOut(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)
	require.Len(t, alice.handoffs, 1)

	alice.coord.PollRound(h.ctx, 2, alice.handoffs[0].Mask.MaskedWord)
	h.loop.RunDue(h.ctx)
	// 30s round at 1s polls plus 5 slack polls; the first poll ran above.
	for i := 0; i < 34; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, StateRoundPolling, alice.coord.State())

	h.step(time.Second)
	assert.Len(t, alice.handoffs, 1)
	assert.Equal(t, StateError, alice.coord.State())
	assert.Equal(t, []State{StateError}, alice.failures)
}

func TestLaterRoundHandoffCarriesCurrentRoster(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)
	require.Len(t, alice.handoffs, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, alice.handoffs[0].Session.Players)

	sessionID := alice.coord.SessionID()
	h.srv.AddPlayer(sessionID, "carol")
	require.NoError(t, h.srv.MarkWordAsUsed(h.ctx, h.srv.Word(sessionID), sessionID))

	alice.coord.PollRound(h.ctx, 2, alice.handoffs[0].Mask.MaskedWord)
	h.loop.RunDue(h.ctx)
	require.Len(t, alice.handoffs, 2)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, alice.handoffs[1].Session.Players)
}

func TestTerminalStatusWhileAwaitingLaterRound(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")
	bob := h.newPlayer("bob")

	alice.coord.Start(h.ctx)
	bob.coord.Start(h.ctx)
	h.loop.RunDue(h.ctx)
	h.step(time.Second)
	require.Len(t, alice.handoffs, 1)

	h.srv.SetStatus(alice.coord.SessionID(), models.SessionStatusFinished)
	alice.coord.PollRound(h.ctx, 2, alice.handoffs[0].Mask.MaskedWord)
	h.loop.RunDue(h.ctx)

	assert.Equal(t, []string{models.GameStatusFinished}, alice.gameOver)
	assert.Equal(t, StateIdle, alice.coord.State())
}

func TestStartWhileInProgressIsNoop(t *testing.T) {
	h := newHarness(t, memserver.DefaultConfig())
	alice := h.newPlayer("alice")

	alice.coord.Start(h.ctx)
	id := alice.coord.SessionID()
	alice.coord.Start(h.ctx)

	assert.Equal(t, id, alice.coord.SessionID())
	assert.Equal(t, 1, h.srv.Calls("JoinOrCreateGameSession"))
	assert.False(t, alice.coord.Retry(h.ctx))

	alice.coord.Reset()
	assert.Equal(t, StateIdle, alice.coord.State())
	assert.Empty(t, h.loop.ActiveTimers())
}
