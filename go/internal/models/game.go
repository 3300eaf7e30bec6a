package models

import (
	"strings"
	"time"
)

// MaskHidden is the placeholder for an unrevealed letter slot.
const MaskHidden = '_'

// WordMask is the server view of the current round's word for one player.
type WordMask struct {
	MaskedWord  string `json:"masked_word"`
	GuessesLeft int    `json:"guesses_left"`
}

// HiddenMask returns an all-hidden mask of the given length.
func HiddenMask(length int) string {
	if length <= 0 {
		return ""
	}
	return strings.Repeat(string(MaskHidden), length)
}

// MaskComplete reports whether a non-empty mask has no hidden slots left.
func MaskComplete(mask string) bool {
	return mask != "" && !strings.ContainsRune(mask, MaskHidden)
}

// RoundResult is the resolution of one round for this client.
type RoundResult struct {
	Round  int    `json:"round"`
	Won    bool   `json:"won"`
	Word   string `json:"word,omitempty"`
	Reason string `json:"reason"`
}

// GameOutcome is the terminal result of a game.
type GameOutcome struct {
	SessionID string         `json:"session_id"`
	Winner    string         `json:"winner,omitempty"`
	Tie       bool           `json:"tie"`
	Tied      []string       `json:"tied,omitempty"`
	Tally     map[string]int `json:"tally"`
	Reason    string         `json:"reason"`
	Rounds    int            `json:"rounds"`
	EndedAt   time.Time      `json:"ended_at"`
}

// IsWinner reports whether username won the game outright.
func (o GameOutcome) IsWinner(username string) bool {
	return !o.Tie && o.Winner != "" && o.Winner == username
}

// Headline returns the short result text shown on the finished screen.
func (o GameOutcome) Headline(self string) string {
	switch {
	case o.Tie:
		return "It's a tie!"
	case o.Winner == "":
		return "Game over"
	case o.Winner == self:
		return "You won the game!"
	default:
		return o.Winner + " won the game!"
	}
}

// Player is a leaderboard entry.
type Player struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	SessionToken string `json:"session_token"`
	Username     string `json:"username"`
}

// RoundHandoff is passed from matchmaking to the round reconciler once a
// round's mask is live on the server.
type RoundHandoff struct {
	Session     Session
	Round       int
	Mask        WordMask
	ServerStart time.Time
	Duration    time.Duration
}
