package score

import (
	"github.com/rs/zerolog/log"
)

// DefaultWinThreshold is the number of round wins that ends a game.
const DefaultWinThreshold = 3

// Verdict is the result of a threshold check.
type Verdict struct {
	Winner     string
	Tie        bool
	Contenders []string // every player at or above the threshold
}

// Decided reports whether the game has a winner or an explicit tie.
func (v Verdict) Decided() bool {
	return v.Winner != "" || v.Tie
}

// Tracker keeps the client side round-win tally. The server has no
// equivalent, so this is the only record of round wins.
type Tracker struct {
	order    []string
	wins     map[string]int
	recorded map[int]string // round -> username credited
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		wins:     make(map[string]int),
		recorded: make(map[int]string),
	}
}

// Reset starts a new game with every participant at zero.
func (t *Tracker) Reset(players []string) {
	t.order = nil
	t.wins = make(map[string]int)
	t.recorded = make(map[int]string)
	for _, p := range players {
		t.add(p)
	}
}

func (t *Tracker) add(username string) {
	if username == "" {
		return
	}
	if _, ok := t.wins[username]; ok {
		return
	}
	t.wins[username] = 0
	t.order = append(t.order, username)
}

// RecordRoundWin credits one round win. A round can be credited only once;
// repeated calls for the same round return false.
func (t *Tracker) RecordRoundWin(username string, round int) bool {
	if prev, ok := t.recorded[round]; ok {
		log.Debug().
			Int("round", round).
			Str("credited", prev).
			Str("username", username).
			Msg("round win already recorded")
		return false
	}
	t.add(username)
	t.wins[username]++
	t.recorded[round] = username
	return true
}

// SyncFromSession adds entries for new participants and drops entries for
// players no longer in the session.
func (t *Tracker) SyncFromSession(players []string) {
	present := make(map[string]bool, len(players))
	for _, p := range players {
		present[p] = true
		t.add(p)
	}

	kept := t.order[:0]
	for _, p := range t.order {
		if present[p] {
			kept = append(kept, p)
			continue
		}
		delete(t.wins, p)
		log.Debug().Str("username", p).Msg("player left session, dropping tally")
	}
	t.order = kept
}

// Wins returns a player's tally.
func (t *Tracker) Wins(username string) int {
	return t.wins[username]
}

// Players returns the participants in join order.
func (t *Tracker) Players() []string {
	return append([]string(nil), t.order...)
}

// Snapshot returns a copy of the tally.
func (t *Tracker) Snapshot() map[string]int {
	out := make(map[string]int, len(t.wins))
	for k, v := range t.wins {
		out[k] = v
	}
	return out
}

// FirstToThreshold returns the player whose tally reached n. It returns
// false when nobody has, and also when more than one player has, since that
// is a tie rather than a winner.
func (t *Tracker) FirstToThreshold(n int) (string, bool) {
	v := t.Verdict(n)
	if v.Winner == "" {
		return "", false
	}
	return v.Winner, true
}

// Verdict checks the threshold. Several players at or above n is an
// explicit tie listing all of them in join order.
func (t *Tracker) Verdict(n int) Verdict {
	if n <= 0 {
		n = DefaultWinThreshold
	}
	var contenders []string
	for _, p := range t.order {
		if t.wins[p] >= n {
			contenders = append(contenders, p)
		}
	}
	switch len(contenders) {
	case 0:
		return Verdict{}
	case 1:
		return Verdict{Winner: contenders[0], Contenders: contenders}
	default:
		return Verdict{Tie: true, Contenders: contenders}
	}
}

// Leaders returns the players holding the highest tally and that tally.
// Used when a game ends without anyone reaching the threshold.
func (t *Tracker) Leaders() ([]string, int) {
	best := -1
	var leaders []string
	for _, p := range t.order {
		switch w := t.wins[p]; {
		case w > best:
			best = w
			leaders = []string{p}
		case w == best:
			leaders = append(leaders, p)
		}
	}
	if best < 0 {
		best = 0
	}
	return leaders, best
}
