package notify

import (
	"testing"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterStampsSessionAndTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &Recorder{}
	e := NewEmitter(rec, func() time.Time { return at })

	e.Status("hello")
	e.SetSession("s1")
	e.RoundStarted(2, "P______", 5, 30)

	all := rec.All()
	require.Len(t, all, 2)
	assert.Empty(t, all[0].SessionID)
	assert.Equal(t, "s1", all[1].SessionID)
	assert.Equal(t, at, all[1].At)
	assert.Equal(t, 2, all[1].Round)
	assert.Equal(t, 5, *all[1].GuessesLeft)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestGameEndedCarriesTally(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, nil)

	e.GameEnded(models.GameOutcome{Winner: "bob", Tally: map[string]int{"bob": 3}}, "bob wins")

	n, ok := rec.Last(KindGameEnded)
	require.True(t, ok)
	assert.Equal(t, "bob wins", n.Text)
	assert.Equal(t, map[string]int{"bob": 3}, n.Scores)
	assert.Equal(t, "bob", n.Outcome.Winner)
}

func TestMultiAndChannel(t *testing.T) {
	rec := &Recorder{}
	ch := NewChannel(1)
	m := Multi{rec, nil, ch}

	m.Publish(New(KindKeyboard, time.Now()))
	m.Publish(New(KindWord, time.Now()))

	assert.Len(t, rec.All(), 2)
	require.Len(t, ch.C, 1)
	assert.Equal(t, KindKeyboard, (<-ch.C).Kind)

	rec.Reset()
	assert.Empty(t, rec.OfKind(KindWord))
}

func TestNilSinkDiscards(t *testing.T) {
	e := NewEmitter(nil, nil)
	assert.NotPanics(t, func() { e.NavigateToMenu() })
}
