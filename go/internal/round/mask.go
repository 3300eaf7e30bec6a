package round

import (
	"strings"

	"github.com/mcdev12/wordgame/go/internal/models"
)

// ProjectMask filters a server mask through the letters this client has
// guessed. Letters the client never guessed stay hidden even when the server
// shows them.
func ProjectMask(raw string, guessed map[rune]bool) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r != models.MaskHidden && guessed[r] {
			b.WriteRune(r)
		} else {
			b.WriteRune(models.MaskHidden)
		}
	}
	return b.String()
}

// mergeMask overlays incoming on current without hiding letters current
// already shows. Masks of different lengths are not merged.
func mergeMask(current, incoming string) (string, bool) {
	if len(current) != len(incoming) {
		return current, false
	}
	cur := []rune(current)
	for i, r := range incoming {
		if r != models.MaskHidden {
			cur[i] = r
		}
	}
	return string(cur), true
}

// revealLetter shows every position of letter in secret on mask.
func revealLetter(mask, secret string, letter rune) string {
	if len(mask) != len(secret) {
		return mask
	}
	out := []rune(mask)
	for i, r := range secret {
		if r == letter {
			out[i] = r
		}
	}
	return string(out)
}

// consistent reports whether secret could be the word behind a server mask.
func consistent(secret, raw string) bool {
	if len(secret) != len(raw) {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] != byte(models.MaskHidden) && raw[i] != secret[i] {
			return false
		}
	}
	return true
}

// normalizeLetter returns the upper-case letter of a single A-Z guess.
func normalizeLetter(s string) (rune, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return 0, false
	}
	return rune(s[0]), true
}
