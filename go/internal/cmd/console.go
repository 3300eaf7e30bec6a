package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcdev12/wordgame/go/internal/notify"
)

// command is one parsed line of terminal input.
type command struct {
	name   string
	letter string
	limit  int
}

const (
	cmdStart   = "start"
	cmdGuess   = "guess"
	cmdEnd     = "end"
	cmdMenu    = "menu"
	cmdRetry   = "retry"
	cmdTop     = "top"
	cmdHistory = "history"
	cmdHelp    = "help"
	cmdQuit    = "quit"
)

const helpText = `commands:
  start            find a game
  <letter>         guess a letter (or: guess <letter>)
  end              end the round once the word is revealed
  retry            retry matchmaking after a timeout
  menu             leave the game
  top [n]          show the leaderboard
  history [n]      show your recent games
  quit             exit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}

	name := fields[0]
	switch name {
	case cmdStart, cmdEnd, cmdMenu, cmdRetry, cmdHelp, cmdQuit:
		return command{name: name}, nil
	case "exit", "q":
		return command{name: cmdQuit}, nil
	case cmdGuess:
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: guess <letter>")
		}
		return command{name: cmdGuess, letter: fields[1]}, nil
	case cmdTop, cmdHistory:
		c := command{name: name, limit: 10}
		if len(fields) > 1 {
			if _, err := fmt.Sscanf(fields[1], "%d", &c.limit); err != nil || c.limit <= 0 {
				return command{}, fmt.Errorf("usage: %s [n]", name)
			}
		}
		return c, nil
	}

	if len([]rune(name)) == 1 && len(fields) == 1 {
		return command{name: cmdGuess, letter: name}, nil
	}
	return command{}, fmt.Errorf("unknown command %q, type help", fields[0])
}

// render formats a notification for the terminal. Empty means skip.
func render(n notify.Notification) string {
	switch n.Kind {
	case notify.KindStatus:
		return "· " + n.Text
	case notify.KindWord:
		return "Word: " + spaced(n.Word)
	case notify.KindGuessesLeft:
		if n.GuessesLeft == nil {
			return ""
		}
		return fmt.Sprintf("Guesses left: %d", *n.GuessesLeft)
	case notify.KindTimeLeft:
		if n.TimeLeft == nil {
			return ""
		}
		if left := *n.TimeLeft; left%10 == 0 || left <= 5 {
			return fmt.Sprintf("Time left: %ds", left)
		}
		return ""
	case notify.KindGuessedLetters:
		if len(n.Letters) == 0 {
			return ""
		}
		return "Guessed: " + strings.Join(n.Letters, " ")
	case notify.KindRoundStarted:
		var guesses, secs int
		if n.GuessesLeft != nil {
			guesses = *n.GuessesLeft
		}
		if n.TimeLeft != nil {
			secs = *n.TimeLeft
		}
		return fmt.Sprintf("=== Round %d ===  %s  (%d guesses, %ds)", n.Round, spaced(n.Word), guesses, secs)
	case notify.KindRoundResult:
		if n.Result == nil {
			return ""
		}
		verb := "lost"
		if n.Result.Won {
			verb = "won"
		}
		line := fmt.Sprintf("Round %d %s: %s", n.Result.Round, verb, n.Result.Reason)
		if n.Result.Word != "" {
			line += fmt.Sprintf(" (word: %s)", n.Result.Word)
		}
		return line
	case notify.KindScores:
		return "Scores: " + formatScores(n.Scores)
	case notify.KindMatchmaking:
		if n.Text == "" {
			return ""
		}
		return fmt.Sprintf("[%s] %s", n.State, n.Text)
	case notify.KindGameEnded:
		return fmt.Sprintf("*** %s ***  %s", n.Text, formatScores(n.Scores))
	case notify.KindErrorDialog:
		return fmt.Sprintf("!! %s: %s", n.Title, n.Text)
	case notify.KindNavigateToMenu:
		return "Back at the menu. Type start to play."
	case notify.KindLeaderboard:
		var b strings.Builder
		b.WriteString("Leaderboard:")
		for i, p := range n.Players {
			fmt.Fprintf(&b, "\n  %d. %-16s %d", i+1, p.Username, p.Wins)
		}
		return b.String()
	}
	return ""
}

func spaced(mask string) string {
	return strings.Join(strings.Split(mask, ""), " ")
}

func formatScores(scores map[string]int) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %d", name, scores[name]))
	}
	return strings.Join(parts, ", ")
}
