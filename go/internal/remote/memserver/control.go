package memserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
)

type fault struct {
	err       error
	remaining int // negative means until cleared
}

type faultTable struct {
	mu     sync.Mutex
	faults map[string]*fault
	calls  map[string]int
}

func newFaultTable() *faultTable {
	return &faultTable{
		faults: make(map[string]*fault),
		calls:  make(map[string]int),
	}
}

// check counts a call to op and returns the injected failure, if any.
func (f *faultTable) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	ft, ok := f.faults[op]
	if !ok {
		return nil
	}
	if ft.remaining > 0 {
		ft.remaining--
		if ft.remaining == 0 {
			delete(f.faults, op)
		}
	}
	return ft.err
}

// InjectFault makes the next times calls to op fail with err. A negative
// times fails every call until ClearFaults.
func (s *Server) InjectFault(op string, err error, times int) {
	if times == 0 {
		return
	}
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.faults[op] = &fault{err: err, remaining: times}
}

// InjectTransportFault is InjectFault with a simulated connection failure.
func (s *Server) InjectTransportFault(op string, times int) {
	s.InjectFault(op, &remote.TransportError{Op: op, Err: errConnectionLost}, times)
}

// ClearFaults removes every injected failure.
func (s *Server) ClearFaults() {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.faults = make(map[string]*fault)
}

// Calls returns how many times op has been invoked.
func (s *Server) Calls(op string) int {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	return s.faults.calls[op]
}

var errConnectionLost = errors.New("connection lost")

// SessionOf returns the session id a player belongs to.
func (s *Server) SessionOf(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[username]
	return id, ok
}

// Round returns the session's current round number.
func (s *Server) Round(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.round
	}
	return 0
}

// Word returns the session's current secret word.
func (s *Server) Word(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.word
	}
	return ""
}

// SetWord replaces the current round's word and clears its reveals.
func (s *Server) SetWord(sessionID, word string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	sess.word = strings.ToUpper(word)
	sess.revealed = make(map[rune]bool)
	sess.guessed = make(map[string]map[rune]bool)
}

// RevealLetter reveals a letter in the shared mask as if another player
// had guessed it.
func (s *Server) RevealLetter(sessionID string, letter rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.revealed[letter] = true
	}
}

// SetGuessesLeft overrides a player's server side guess counter.
func (s *Server) SetGuessesLeft(username string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessionFor(username); ok {
		sess.guessesLeft[username] = n
	}
}

// SetStatus overrides a session's status.
func (s *Server) SetStatus(sessionID string, status models.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.status = status
	}
}

// SetRoundStart overrides the start time of a round.
func (s *Server) SetRoundStart(sessionID string, round int, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.roundStarts[round] = start
	}
}

// AddPlayer puts a player into a session regardless of its status.
func (s *Server) AddPlayer(sessionID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	sess.players = append(sess.players, username)
	sess.guessesLeft[username] = s.cfg.MaxGuesses
	s.byPlayer[username] = sessionID
}

// RemoveSession drops a session as if the server had expired it.
func (s *Server) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	for _, p := range sess.players {
		if s.byPlayer[p] == sessionID {
			delete(s.byPlayer, p)
		}
	}
	delete(s.sessions, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
