package round

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
	"github.com/mcdev12/wordgame/go/internal/score"
	"github.com/mcdev12/wordgame/go/internal/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nextRoundCall struct {
	round int
	prev  string
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	clock     *clockwork.FakeClock
	loop      *scheduler.Loop
	srv       *memserver.Server
	gw        *remote.Gateway
	notes     *notify.Recorder
	tracker   *score.Tracker
	rec       *Reconciler
	sessionID string

	results []models.RoundResult
	ended   []models.GameOutcome
	fatals  []string
	next    []nextRoundCall
}

// setup overrides parts of the default fixture.
type setup struct {
	picker   *words.Picker
	services func(remote.Services) remote.Services
	async    bool
}

// newFixture starts a two player game on HANGMAN with alice as this client.
func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, setup{})
}

func newFixtureWith(t *testing.T, s setup) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	srv := memserver.New(clock, memserver.DefaultConfig())

	services := remote.ServicesFrom(srv)
	if s.services != nil {
		services = s.services(services)
	}
	var opts []remote.GatewayOption
	if !s.async {
		opts = append(opts, remote.WithBestEffortRunner(remote.RunInline))
	}
	if s.picker == nil {
		s.picker = words.NewPicker(nil)
	}

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		clock:   clock,
		loop:    scheduler.NewLoop(clock),
		srv:     srv,
		gw:      remote.NewGateway(services, opts...),
		notes:   &notify.Recorder{},
		tracker: score.NewTracker(),
	}
	emit := notify.NewEmitter(f.notes, clock.Now)
	f.rec = NewReconciler(DefaultConfig(), f.gw, f.loop, emit, f.tracker, s.picker, "alice", Callbacks{
		NextRound: func(_ context.Context, round int, prev string) {
			f.next = append(f.next, nextRoundCall{round: round, prev: prev})
		},
		RoundEnded: func(_ context.Context, res models.RoundResult) { f.results = append(f.results, res) },
		GameEnded:  func(_ context.Context, o models.GameOutcome) { f.ended = append(f.ended, o) },
		Fatal:      func(_ context.Context, reason string) { f.fatals = append(f.fatals, reason) },
	})

	id, err := f.gw.JoinOrCreateSession(f.ctx, "alice")
	require.NoError(t, err)
	_, err = f.gw.JoinOrCreateSession(f.ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, f.gw.RequestToJoin(f.ctx, "bob"))
	require.Equal(t, "HANGMAN", srv.Word(id))
	f.sessionID = id
	return f
}

func (f *fixture) handoff(round int) models.RoundHandoff {
	f.t.Helper()
	sess, ok, err := f.gw.FindSession(f.ctx, f.sessionID)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	mask, err := f.gw.GetWordMask(f.ctx, "alice")
	require.NoError(f.t, err)
	return models.RoundHandoff{
		Session:     sess,
		Round:       round,
		Mask:        mask,
		ServerStart: f.clock.Now(),
		Duration:    30 * time.Second,
	}
}

func (f *fixture) begin(round int) {
	f.rec.BeginRound(f.ctx, f.handoff(round))
	require.True(f.t, f.rec.Active())
}

func (f *fixture) guess(letters ...string) {
	f.t.Helper()
	for _, l := range letters {
		require.NoError(f.t, f.rec.SubmitLetterGuess(f.ctx, l))
	}
}

func (f *fixture) step(d time.Duration) {
	f.clock.Advance(d)
	f.loop.RunDue(f.ctx)
}

func TestGuessedLettersGrowAndCoverCorrect(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	prev := 0
	for _, l := range []string{"h", "X", "A", "Z", "a", "N", "Q", "G", "M"} {
		require.NoError(t, f.rec.SubmitLetterGuess(f.ctx, l))
		v := f.rec.View()
		assert.GreaterOrEqual(t, len(v.Guessed), prev)
		prev = len(v.Guessed)
		assert.Subset(t, v.Guessed, v.Correct)
	}

	v := f.rec.View()
	assert.Equal(t, []string{"H", "X", "A", "Z", "N", "Q", "G", "M"}, v.Guessed)
	assert.ElementsMatch(t, []string{"H", "A", "N", "G", "M"}, v.Correct)
	assert.Equal(t, 2, v.GuessesLeft)
}

func TestHangmanDuplicatesIgnoredAndRoundWonAtExpiry(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.guess("H", "A", "N", "G", "M", "M", "A")

	v := f.rec.View()
	assert.Equal(t, "HANGMAN", v.Mask)
	assert.Equal(t, 5, v.GuessesLeft)
	assert.Equal(t, 5, f.srv.Calls("SubmitGuess"))

	// A complete word does not end the round by itself.
	assert.True(t, f.rec.Active())
	assert.Empty(t, f.results)

	f.step(30 * time.Second)
	require.Len(t, f.results, 1)
	assert.True(t, f.results[0].Won)
	assert.Equal(t, "HANGMAN", f.results[0].Word)
	assert.Equal(t, 1, f.tracker.Wins("alice"))

	n, ok := f.notes.Last(notify.KindRoundResult)
	require.True(t, ok)
	assert.True(t, n.Result.Won)
}

func TestZeroGuessesAtRoundStartResetToMax(t *testing.T) {
	f := newFixture(t)
	f.srv.SetGuessesLeft("alice", 0)

	h := f.handoff(1)
	require.Equal(t, 0, h.Mask.GuessesLeft)
	f.rec.BeginRound(f.ctx, h)

	assert.True(t, f.rec.Active())
	assert.Equal(t, 5, f.rec.View().GuessesLeft)
	assert.Empty(t, f.results)

	// The server still refuses guesses; the local counter carries on.
	f.guess("B")
	assert.Equal(t, 4, f.rec.View().GuessesLeft)
	assert.True(t, f.rec.Active())
}

func TestRoundLostWhenGuessesRunOut(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.guess("B", "C", "D", "E")
	assert.True(t, f.rec.Active())
	assert.Equal(t, 1, f.rec.View().GuessesLeft)

	f.guess("F")
	assert.False(t, f.rec.Active())
	require.Len(t, f.results, 1)
	assert.False(t, f.results[0].Won)
	assert.Zero(t, f.tracker.Wins("alice"))

	assert.ErrorIs(t, f.rec.SubmitLetterGuess(f.ctx, "H"), ErrRoundNotActive)
}

func TestRoundWonWhenWordCompleteBeforeGuessesRunOut(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.guess("H", "A", "N", "G", "M", "B", "C", "D", "E", "F")

	require.Len(t, f.results, 1)
	assert.True(t, f.results[0].Won)
	assert.Equal(t, 1, f.tracker.Wins("alice"))
}

func TestNextRoundWordUsedWhenRandomWordUnavailable(t *testing.T) {
	f := newFixture(t)
	f.srv.InjectTransportFault("GetRandomWord", -1)
	f.begin(1)
	assert.Equal(t, 1, f.srv.Calls("GetNewWordForNextRound"))

	f.srv.InjectFault("GetWordMask", remote.NewError(remote.ErrGameNotFound, "no game in progress"), 3)
	f.guess("G")

	v := f.rec.View()
	assert.Equal(t, "___G___", v.Mask)
	assert.Equal(t, 5, v.GuessesLeft)
}

func TestMaskNotFoundFallsBackToLocalReveal(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	before := f.srv.Calls("GetWordMask")
	f.srv.InjectFault("GetWordMask", remote.NewError(remote.ErrGameNotFound, "no game in progress"), 3)

	f.guess("H")

	assert.Equal(t, 3, f.srv.Calls("GetWordMask")-before)
	v := f.rec.View()
	assert.Equal(t, "H______", v.Mask)
	assert.Equal(t, 5, v.GuessesLeft)
	assert.True(t, f.rec.Active())
	assert.False(t, f.rec.LocalOnly())
	assert.Empty(t, f.fatals)
}

func TestTimerExpiryWithLettersHiddenLosesAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.guess("H", "A", "N")
	require.Equal(t, "HAN__AN", f.rec.View().Mask)

	f.step(30 * time.Second)
	require.Len(t, f.results, 1)
	assert.False(t, f.results[0].Won)
	assert.Equal(t, 1, f.srv.Calls("MarkWordAsUsed"))
	assert.Equal(t, 2, f.srv.Round(f.sessionID))
	assert.Zero(t, f.tracker.Wins("alice"))
	assert.True(t, f.rec.Transitioning())
	assert.Equal(t, []string{"transition"}, f.loop.ActiveTimers())

	f.step(10 * time.Second)
	require.Len(t, f.next, 1)
	assert.Equal(t, 2, f.next[0].round)
	assert.Equal(t, "HAN__AN", f.next[0].prev)

	v := f.rec.View()
	assert.Equal(t, 2, v.Number)
	assert.Empty(t, v.Guessed)
	assert.Equal(t, 5, v.GuessesLeft)
	assert.False(t, f.rec.Transitioning())
}

func TestTransitionWaitsForServerToOpenNextRound(t *testing.T) {
	f := newFixture(t)
	f.begin(1)
	f.srv.InjectTransportFault("MarkWordAsUsed", -1)

	f.step(30 * time.Second)
	require.Len(t, f.results, 1)
	assert.Equal(t, []string{"next-round", "next-round-fallback"}, f.loop.ActiveTimers())

	f.step(15 * time.Second)
	assert.Equal(t, []string{"transition"}, f.loop.ActiveTimers())

	// The server is still on round 1: nothing moves on.
	f.step(10 * time.Second)
	for i := 0; i < 4; i++ {
		f.step(time.Second)
	}
	assert.Empty(t, f.next)
	assert.Equal(t, 1, f.rec.View().Number)
	assert.True(t, f.rec.Transitioning())
	assert.False(t, f.rec.LocalOnly())
	assert.Equal(t, []string{"next-round"}, f.loop.ActiveTimers())

	f.srv.ClearFaults()
	require.NoError(t, f.srv.MarkWordAsUsed(f.ctx, "HANGMAN", f.sessionID))
	f.step(500 * time.Millisecond)

	require.Len(t, f.next, 1)
	assert.Equal(t, 2, f.next[0].round)
	assert.Equal(t, 2, f.rec.View().Number)
	assert.False(t, f.rec.Transitioning())
	assert.Empty(t, f.loop.ActiveTimers())
}

func TestGameFinishedWhileWaitingForNextRound(t *testing.T) {
	f := newFixture(t)
	f.begin(1)
	f.srv.InjectTransportFault("MarkWordAsUsed", -1)

	f.step(30 * time.Second)
	f.step(15 * time.Second)
	f.step(10 * time.Second)
	require.Empty(t, f.next)

	f.srv.SetStatus(f.sessionID, models.SessionStatusFinished)
	f.step(500 * time.Millisecond)

	require.Len(t, f.ended, 1)
	assert.Empty(t, f.next)
	assert.True(t, f.rec.GameOver())
	assert.Empty(t, f.loop.ActiveTimers())
}

// stalledWords holds MarkWordAsUsed until released.
type stalledWords struct {
	remote.WordService
	release chan struct{}
}

func (w stalledWords) MarkWordAsUsed(ctx context.Context, word, sessionID string) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.WordService.MarkWordAsUsed(ctx, word, sessionID)
}

func TestHungWordServiceDoesNotDelayRoundEnd(t *testing.T) {
	release := make(chan struct{})
	f := newFixtureWith(t, setup{
		async: true,
		services: func(s remote.Services) remote.Services {
			s.Words = stalledWords{WordService: s.Words, release: release}
			return s
		},
	})
	f.begin(1)
	f.guess("H", "A", "N", "G", "M")

	ended := make(chan error, 1)
	go func() { ended <- f.rec.EndRoundEarly(f.ctx) }()
	select {
	case err := <-ended:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("round end waited on the word service")
	}

	require.Len(t, f.results, 1)
	assert.True(t, f.results[0].Won)
	assert.True(t, f.rec.Transitioning())
	assert.Equal(t, []string{"next-round", "next-round-fallback"}, f.loop.ActiveTimers())

	close(release)
	f.gw.Wait()
	assert.Equal(t, 2, f.srv.Round(f.sessionID))

	f.step(500 * time.Millisecond)
	assert.Equal(t, []string{"transition"}, f.loop.ActiveTimers())
	f.step(10 * time.Second)
	require.Len(t, f.next, 1)
	assert.Equal(t, 2, f.next[0].round)
}

func TestGameStatePollingResumesWhenServerReturns(t *testing.T) {
	// No fallback words, so a local-only round keeps the server's word.
	f := newFixtureWith(t, setup{picker: words.NewPicker([]string{" "})})
	f.rec.localOnly = true
	f.begin(1)
	assert.NotContains(t, f.loop.ActiveTimers(), "game-state")

	f.step(3 * time.Second)
	assert.False(t, f.rec.LocalOnly())
	assert.Contains(t, f.loop.ActiveTimers(), "game-state")

	f.srv.SetStatus(f.sessionID, models.SessionStatus(models.GameStatusWon))
	f.step(time.Second)
	require.Len(t, f.ended, 1)
	assert.True(t, f.ended[0].IsWinner("alice"))
}

func TestOtherPlayersRevealsStayHidden(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gw.SubmitGuess(f.ctx, "bob", "A"))

	f.begin(1)
	assert.Equal(t, "_______", f.rec.View().Mask)

	f.guess("H")
	assert.Equal(t, "H______", f.rec.View().Mask)

	f.guess("A")
	assert.Equal(t, "HA___A_", f.rec.View().Mask)
}

func TestRepeatedFailuresSwitchToLocalOnly(t *testing.T) {
	f := newFixture(t)
	f.begin(1)
	f.srv.InjectTransportFault("SubmitGuess", -1)

	f.guess("B", "C", "D")
	assert.True(t, f.rec.LocalOnly())
	assert.Equal(t, 3, f.srv.Calls("SubmitGuess"))

	f.guess("E", "H")
	assert.Equal(t, 3, f.srv.Calls("SubmitGuess"))
	v := f.rec.View()
	assert.Equal(t, 1, v.GuessesLeft)
	assert.Equal(t, "H______", v.Mask)
	assert.True(t, f.rec.Active())
}

func TestSessionGoneIsFatal(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.srv.RemoveSession(f.sessionID)
	f.step(time.Second)

	require.Len(t, f.fatals, 1)
	assert.True(t, f.rec.GameOver())
	assert.Empty(t, f.loop.ActiveTimers())
	assert.Empty(t, f.ended)
}

func TestThresholdEndsGameOnce(t *testing.T) {
	f := newFixture(t)
	f.begin(3)
	f.tracker.RecordRoundWin("alice", 1)
	f.tracker.RecordRoundWin("alice", 2)

	f.guess("H", "A", "N", "G", "M")
	require.NoError(t, f.rec.EndRoundEarly(f.ctx))

	require.Len(t, f.ended, 1)
	assert.Equal(t, "alice", f.ended[0].Winner)
	assert.Equal(t, 3, f.ended[0].Tally["alice"])
	assert.Equal(t, f.sessionID, f.ended[0].SessionID)
	assert.True(t, f.rec.GameOver())
	assert.Empty(t, f.loop.ActiveTimers())

	assert.ErrorIs(t, f.rec.EndRoundEarly(f.ctx), ErrRoundNotActive)
	f.rec.EndGame(f.ctx, models.GameStatusFinished)
	assert.Len(t, f.ended, 1)

	n, ok := f.notes.Last(notify.KindGameEnded)
	require.True(t, ok)
	assert.Equal(t, "You won the game!", n.Text)
}

func TestEndRoundEarlyNeedsCompleteWord(t *testing.T) {
	f := newFixture(t)
	f.begin(1)
	f.guess("H")

	assert.ErrorIs(t, f.rec.EndRoundEarly(f.ctx), ErrWordIncomplete)
	assert.True(t, f.rec.Active())
}

func TestServerReportedWinEndsGame(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	f.srv.SetStatus(f.sessionID, models.SessionStatus(models.GameStatusWon))
	f.step(time.Second)

	require.Len(t, f.ended, 1)
	assert.True(t, f.ended[0].IsWinner("alice"))
}

func TestInvalidLetterRejected(t *testing.T) {
	f := newFixture(t)
	f.begin(1)

	assert.ErrorIs(t, f.rec.SubmitLetterGuess(f.ctx, "7"), ErrInvalidLetter)
	assert.ErrorIs(t, f.rec.SubmitLetterGuess(f.ctx, "ab"), ErrInvalidLetter)
	assert.Empty(t, f.rec.View().Guessed)
}
