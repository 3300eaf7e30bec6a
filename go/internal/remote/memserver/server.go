// Package memserver is an in-memory game server. It backs the local dev
// server binary and every package test that needs an authoritative remote.
package memserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/rs/zerolog/log"
)

// RoundStartLayout is the textual layout used for round start times.
const RoundStartLayout = "2006-01-02 15:04:05.000000"

// Config holds the server's tunables.
type Config struct {
	WaitTimeSec  int
	RoundTimeSec int
	MinPlayers   int
	MaxPlayers   int
	MaxGuesses   int
	StartDelay   time.Duration // between the game starting and round 1
	TopPlayers   int
	Words        []string
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		WaitTimeSec:  10,
		RoundTimeSec: 30,
		MinPlayers:   2,
		MaxPlayers:   5,
		MaxGuesses:   5,
		TopPlayers:   5,
		Words: []string{
			"HANGMAN", "PROGRAM", "KEYBOARD", "MONITOR", "SOFTWARE",
			"FUNCTION", "VARIABLE", "PACKAGE", "LIBRARY", "INTERFACE",
		},
	}
}

type session struct {
	id          string
	status      models.SessionStatus
	players     []string
	createdAt   time.Time
	round       int
	word        string
	revealed    map[rune]bool
	guessed     map[string]map[rune]bool
	guessesLeft map[string]int
	roundStarts map[int]time.Time
	usedWords   map[string]bool
}

type account struct {
	password string
	wins     int
	token    string
}

// Server is an authoritative in-memory implementation of every remote
// service group.
type Server struct {
	clock clockwork.Clock
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*session
	order    []string
	byPlayer map[string]string
	accounts map[string]*account
	tokens   map[string]string

	faults *faultTable
}

var _ remote.Backend = (*Server)(nil)

// New creates a server.
func New(clock clockwork.Clock, cfg Config) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if len(cfg.Words) == 0 {
		cfg.Words = DefaultConfig().Words
	}
	if cfg.MinPlayers <= 0 {
		cfg.MinPlayers = 2
	}
	if cfg.MaxPlayers < cfg.MinPlayers {
		cfg.MaxPlayers = 5
	}
	if cfg.MaxGuesses <= 0 {
		cfg.MaxGuesses = 5
	}
	if cfg.TopPlayers <= 0 {
		cfg.TopPlayers = 5
	}
	return &Server{
		clock:    clock,
		cfg:      cfg,
		sessions: make(map[string]*session),
		byPlayer: make(map[string]string),
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		faults:   newFaultTable(),
	}
}

// sessionFor returns the active session of a player. Callers hold s.mu.
func (s *Server) sessionFor(username string) (*session, bool) {
	id, ok := s.byPlayer[username]
	if !ok {
		return nil, false
	}
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) JoinOrCreateGameSession(ctx context.Context, username string) (string, error) {
	if err := s.faults.check("JoinOrCreateGameSession"); err != nil {
		return "", err
	}
	if strings.TrimSpace(username) == "" {
		return "", remote.NewError(remote.ErrInvalidCredentials, "username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessionFor(username); ok && sess.status != models.SessionStatusFinished {
		return sess.id, nil
	}

	for _, id := range s.order {
		sess := s.sessions[id]
		if sess.status == models.SessionStatusWaiting && len(sess.players) < s.cfg.MaxPlayers {
			sess.players = append(sess.players, username)
			s.byPlayer[username] = sess.id
			log.Debug().Str("session_id", sess.id).Str("username", username).Msg("player joined session")
			return sess.id, nil
		}
	}

	sess := &session{
		id:          uuid.New().String(),
		status:      models.SessionStatusWaiting,
		players:     []string{username},
		createdAt:   s.clock.Now(),
		revealed:    make(map[rune]bool),
		guessed:     make(map[string]map[rune]bool),
		guessesLeft: make(map[string]int),
		roundStarts: make(map[int]time.Time),
		usedWords:   make(map[string]bool),
	}
	s.sessions[sess.id] = sess
	s.order = append(s.order, sess.id)
	s.byPlayer[username] = sess.id
	log.Debug().Str("session_id", sess.id).Str("username", username).Msg("session created")
	return sess.id, nil
}

func (s *Server) ListActiveGameSessions(ctx context.Context) ([]models.Session, error) {
	if err := s.faults.check("ListActiveGameSessions"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Session, 0, len(s.order))
	for _, id := range s.order {
		sess := s.sessions[id]
		start := ""
		if t, ok := sess.roundStarts[1]; ok {
			start = t.Local().Format(RoundStartLayout)
		}
		out = append(out, models.Session{
			ID:        sess.id,
			Status:    sess.status,
			Players:   append([]string(nil), sess.players...),
			StartTime: start,
		})
	}
	return out, nil
}

func (s *Server) RequestToJoinGame(ctx context.Context, username string) error {
	if err := s.faults.check("RequestToJoinGame"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionFor(username)
	if !ok {
		return remote.NewError(remote.ErrGameNotFound, "player has no session")
	}
	if sess.status == models.SessionStatusPlaying {
		return nil
	}
	if len(sess.players) < s.cfg.MinPlayers {
		return remote.NewError(remote.ErrNoOpponentFound, "waiting for an opponent")
	}
	if sess.status == models.SessionStatusWaiting {
		s.startGame(sess)
	}
	return nil
}

// startGame moves a session to PLAYING and opens round 1. Callers hold s.mu.
func (s *Server) startGame(sess *session) {
	sess.status = models.SessionStatusPlaying
	s.openRound(sess, 1, s.clock.Now().Add(s.cfg.StartDelay))
	log.Info().
		Str("session_id", sess.id).
		Strs("players", sess.players).
		Msg("game started")
}

// openRound resets round state for every player. Callers hold s.mu.
func (s *Server) openRound(sess *session, round int, start time.Time) {
	sess.round = round
	sess.word = s.pickWord(sess)
	sess.revealed = make(map[rune]bool)
	sess.guessed = make(map[string]map[rune]bool)
	sess.guessesLeft = make(map[string]int)
	for _, p := range sess.players {
		sess.guessesLeft[p] = s.cfg.MaxGuesses
	}
	sess.roundStarts[round] = start
}

func (s *Server) pickWord(sess *session) string {
	for _, w := range s.cfg.Words {
		w = strings.ToUpper(w)
		if !sess.usedWords[w] {
			return w
		}
	}
	// Every word used: start over.
	sess.usedWords = make(map[string]bool)
	return strings.ToUpper(s.cfg.Words[0])
}

func (s *Server) GetWordMask(ctx context.Context, username string) (models.WordMask, error) {
	if err := s.faults.check("GetWordMask"); err != nil {
		return models.WordMask{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionFor(username)
	if !ok || sess.status != models.SessionStatusPlaying {
		return models.WordMask{}, remote.NewError(remote.ErrGameNotFound, "no game in progress")
	}
	if start, ok := sess.roundStarts[sess.round]; ok && s.clock.Now().Before(start) {
		return models.WordMask{MaskedWord: "", GuessesLeft: s.cfg.MaxGuesses}, nil
	}

	var b strings.Builder
	for _, r := range sess.word {
		if sess.revealed[r] {
			b.WriteRune(r)
		} else {
			b.WriteRune(models.MaskHidden)
		}
	}
	return models.WordMask{MaskedWord: b.String(), GuessesLeft: sess.guessesLeft[username]}, nil
}

func (s *Server) SubmitGuess(ctx context.Context, username, letter string) error {
	if err := s.faults.check("SubmitGuess"); err != nil {
		return err
	}

	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return remote.NewError(remote.ErrInvalidGuess, fmt.Sprintf("%q is not a single letter", letter))
	}
	r := rune(letter[0])

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionFor(username)
	if !ok || sess.status != models.SessionStatusPlaying {
		return remote.NewError(remote.ErrGameNotFound, "no game in progress")
	}
	if sess.guessed[username] == nil {
		sess.guessed[username] = make(map[rune]bool)
	}
	if sess.guessed[username][r] {
		return remote.NewError(remote.ErrInvalidGuess, fmt.Sprintf("letter %s already guessed", letter))
	}
	if sess.guessesLeft[username] <= 0 {
		return remote.NewError(remote.ErrInvalidGuess, "no guesses left")
	}

	sess.guessed[username][r] = true
	if strings.ContainsRune(sess.word, r) {
		sess.revealed[r] = true
	} else {
		sess.guessesLeft[username]--
	}
	return nil
}

func (s *Server) GetGameStatus(ctx context.Context, username string) (string, error) {
	if err := s.faults.check("GetGameStatus"); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionFor(username)
	if !ok {
		return "", remote.NewError(remote.ErrGameNotFound, "player has no session")
	}
	return string(sess.status), nil
}

func (s *Server) GetRoundStartTime(ctx context.Context, sessionID string, round int) (string, error) {
	if err := s.faults.check("GetRoundStartTime"); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", nil
	}
	start, ok := sess.roundStarts[round]
	if !ok {
		return "", nil
	}
	return start.Local().Format(RoundStartLayout), nil
}

func (s *Server) GetRoundDuration(ctx context.Context, sessionID string) (int, error) {
	if err := s.faults.check("GetRoundDuration"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RoundTimeSec, nil
}

func (s *Server) GetRandomWord(ctx context.Context, sessionID string) (string, error) {
	if err := s.faults.check("GetRandomWord"); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok && sess.word != "" {
		return sess.word, nil
	}
	return strings.ToUpper(s.cfg.Words[0]), nil
}

// MarkWordAsUsed retires the session's current word and opens the next
// round. Marking a word that is no longer current is a no-op, so every
// player may call it once per round.
func (s *Server) MarkWordAsUsed(ctx context.Context, word, sessionID string) error {
	if err := s.faults.check("MarkWordAsUsed"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return remote.NewError(remote.ErrNotFound, "session not found")
	}
	word = strings.ToUpper(strings.TrimSpace(word))
	if sess.status != models.SessionStatusPlaying || word != sess.word {
		return nil
	}

	sess.usedWords[word] = true
	s.openRound(sess, sess.round+1, s.clock.Now())
	log.Debug().
		Str("session_id", sess.id).
		Int("round", sess.round).
		Msg("round advanced")
	return nil
}

func (s *Server) GetNewWordForNextRound(ctx context.Context, sessionID string) (string, error) {
	if err := s.faults.check("GetNewWordForNextRound"); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", remote.NewError(remote.ErrNotFound, "session not found")
	}
	return sess.word, nil
}

func (s *Server) GetWaitTime(ctx context.Context) (int, error) {
	if err := s.faults.check("GetWaitTime"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.WaitTimeSec, nil
}

func (s *Server) GetRoundTime(ctx context.Context) (int, error) {
	if err := s.faults.check("GetRoundTime"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RoundTimeSec, nil
}

func (s *Server) UpdateWaitTime(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return remote.NewError(remote.ErrInvalidGuess, "wait time must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.WaitTimeSec = seconds
	return nil
}

func (s *Server) UpdateRoundTime(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return remote.NewError(remote.ErrInvalidGuess, "round time must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RoundTimeSec = seconds
	return nil
}

func (s *Server) GetTopPlayers(ctx context.Context) ([]models.Player, error) {
	if err := s.faults.check("GetTopPlayers"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]models.Player, 0, len(s.accounts))
	for name, acc := range s.accounts {
		players = append(players, models.Player{Username: name, Wins: acc.wins})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Wins != players[j].Wins {
			return players[i].Wins > players[j].Wins
		}
		return players[i].Username < players[j].Username
	})
	if len(players) > s.cfg.TopPlayers {
		players = players[:s.cfg.TopPlayers]
	}
	return players, nil
}

func (s *Server) IncrementWins(ctx context.Context, username string) error {
	if err := s.faults.check("IncrementWins"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[username]
	if !ok {
		return remote.NewError(remote.ErrNotFound, fmt.Sprintf("player %s not found", username))
	}
	acc.wins++
	return nil
}

func (s *Server) CreatePlayer(ctx context.Context, username, password string) error {
	if err := s.faults.check("CreatePlayer"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; ok {
		return remote.NewError(remote.ErrAlreadyExists, fmt.Sprintf("username %s is taken", username))
	}
	s.accounts[username] = &account{password: password}
	return nil
}

func (s *Server) LoginPlayer(ctx context.Context, username, password string) (models.LoginResult, error) {
	if err := s.faults.check("LoginPlayer"); err != nil {
		return models.LoginResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[username]
	if !ok || acc.password != password {
		return models.LoginResult{}, remote.NewError(remote.ErrInvalidCredentials, "invalid username or password")
	}
	if acc.token != "" {
		return models.LoginResult{}, remote.NewError(remote.ErrAlreadyLoggedIn, fmt.Sprintf("%s is already logged in", username))
	}
	acc.token = uuid.New().String()
	s.tokens[acc.token] = username
	return models.LoginResult{SessionToken: acc.token, Username: username}, nil
}

func (s *Server) LogoutPlayer(ctx context.Context, sessionToken string) error {
	if err := s.faults.check("LogoutPlayer"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.tokens[sessionToken]
	if !ok {
		return remote.NewError(remote.ErrNotFound, "unknown session token")
	}
	delete(s.tokens, sessionToken)
	if acc, ok := s.accounts[username]; ok {
		acc.token = ""
	}
	return nil
}
