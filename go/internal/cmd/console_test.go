package main

import (
	"testing"
	"time"

	"github.com/mcdev12/wordgame/go/internal/history"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"start", command{name: cmdStart}},
		{"  A ", command{name: cmdGuess, letter: "a"}},
		{"guess z", command{name: cmdGuess, letter: "z"}},
		{"END", command{name: cmdEnd}},
		{"top", command{name: cmdTop, limit: 10}},
		{"history 3", command{name: cmdHistory, limit: 3}},
		{"exit", command{name: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "guess", "top -1", "dance"} {
		_, err := parseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestRender(t *testing.T) {
	at := time.Now()

	n := notify.New(notify.KindRoundStarted, at)
	n.Round = 2
	n.Word = "P__G"
	n.GuessesLeft = notify.IntPtr(5)
	n.TimeLeft = notify.IntPtr(30)
	assert.Equal(t, "=== Round 2 ===  P _ _ G  (5 guesses, 30s)", render(n))

	n = notify.New(notify.KindTimeLeft, at)
	n.TimeLeft = notify.IntPtr(17)
	assert.Empty(t, render(n))
	n.TimeLeft = notify.IntPtr(3)
	assert.Equal(t, "Time left: 3s", render(n))

	n = notify.New(notify.KindRoundResult, at)
	n.Result = &models.RoundResult{Round: 1, Won: true, Word: "HANGMAN", Reason: "Word guessed"}
	assert.Equal(t, "Round 1 won: Word guessed (word: HANGMAN)", render(n))

	n = notify.New(notify.KindScores, at)
	n.Scores = map[string]int{"bob": 1, "alice": 2}
	assert.Equal(t, "Scores: alice 2, bob 1", render(n))

	assert.Empty(t, render(notify.New(notify.KindKeyboard, at)))
}

func TestFormatRecord(t *testing.T) {
	r := history.Record{
		Winner:  "bob",
		Rounds:  4,
		Tally:   map[string]int{"alice": 1, "bob": 3},
		EndedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local),
	}
	assert.Equal(t, "2024-05-01 12:30  bob won     4 rounds  alice 1, bob 3", formatRecord(r))

	r.Tie = true
	assert.Contains(t, formatRecord(r), "tie")
}
