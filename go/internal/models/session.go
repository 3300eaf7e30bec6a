package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus defines the status of a game session as reported by the server.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "WAITING"
	SessionStatusPlaying  SessionStatus = "PLAYING"
	SessionStatusFinished SessionStatus = "FINISHED"
	SessionStatusUnknown  SessionStatus = "UNKNOWN"
)

// ParseSessionStatus maps a raw server status onto a SessionStatus.
func ParseSessionStatus(raw string) SessionStatus {
	switch SessionStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case SessionStatusWaiting:
		return SessionStatusWaiting
	case SessionStatusPlaying:
		return SessionStatusPlaying
	case SessionStatusFinished:
		return SessionStatusFinished
	default:
		return SessionStatusUnknown
	}
}

// Game status strings returned by GetGameStatus. The server reports more
// states than a session carries.
const (
	GameStatusPlaying  = "PLAYING"
	GameStatusWaiting  = "WAITING"
	GameStatusWon      = "WON"
	GameStatusLost     = "LOST"
	GameStatusFinished = "FINISHED"
	GameStatusEnded    = "ENDED"
)

// IsTerminalGameStatus reports whether a game status means the game is over.
func IsTerminalGameStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case GameStatusWon, GameStatusLost, GameStatusFinished, GameStatusEnded:
		return true
	}
	return false
}

// Session represents one matchmaking/game instance.
type Session struct {
	ID        string        `json:"game_id"`
	Status    SessionStatus `json:"session_status"`
	Players   []string      `json:"player_usernames"`
	StartTime string        `json:"start_time"`
}

// HasPlayer reports whether username participates in the session.
func (s Session) HasPlayer(username string) bool {
	for _, p := range s.Players {
		if p == username {
			return true
		}
	}
	return false
}

// Ready reports whether the session is playing with enough participants.
func (s Session) Ready(minPlayers int) bool {
	return s.Status == SessionStatusPlaying && len(s.Players) >= minPlayers
}

// Accepted server timestamp layouts, tried in order after RFC 3339.
var serverTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseServerTime parses a server supplied timestamp. Zone-less values are
// read in the local time zone.
func ParseServerTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range serverTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format: %q", raw)
}
