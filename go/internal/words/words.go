package words

import (
	"strings"
)

// Defaults is the built-in word list used when the word service cannot be
// reached.
var Defaults = []string{
	"PYTHON", "PROGRAM", "HANGMAN", "DEVELOP", "KEYBOARD", "MONITOR",
	"COMPUTE", "SOFTWARE", "ALGORITHM", "FUNCTION", "VARIABLE", "MODULE",
	"PACKAGE", "LIBRARY", "INTERFACE", "ABSTRACT", "INHERIT", "POLYMORPH",
	"ENCAPSULATION",
}

// Picker hands out fallback words without repeating one within a game.
type Picker struct {
	words []string
	used  map[string]bool
}

// NewPicker creates a picker over the given list, or Defaults when empty.
func NewPicker(list []string) *Picker {
	if len(list) == 0 {
		list = Defaults
	}
	normalized := make([]string, 0, len(list))
	for _, w := range list {
		if w = strings.ToUpper(strings.TrimSpace(w)); w != "" {
			normalized = append(normalized, w)
		}
	}
	return &Picker{words: normalized, used: make(map[string]bool)}
}

// Pick returns an unused word, preferring one of the given length. A
// length of zero or less matches any word. When every word has been used
// the used set is cleared.
func (p *Picker) Pick(length int) string {
	if len(p.words) == 0 {
		return ""
	}
	if w, ok := p.find(length); ok {
		return p.take(w)
	}
	if w, ok := p.find(0); ok {
		if length <= 0 {
			return p.take(w)
		}
		// No unused word of that length; repeat one of the right length
		// before changing the mask length mid round.
		for _, cand := range p.words {
			if len(cand) == length {
				return p.take(cand)
			}
		}
		return p.take(w)
	}
	p.used = make(map[string]bool)
	return p.Pick(length)
}

func (p *Picker) find(length int) (string, bool) {
	for _, w := range p.words {
		if p.used[w] {
			continue
		}
		if length <= 0 || len(w) == length {
			return w, true
		}
	}
	return "", false
}

func (p *Picker) take(w string) string {
	p.used[w] = true
	return w
}

// MarkUsed records a word as played.
func (p *Picker) MarkUsed(word string) {
	if word = strings.ToUpper(strings.TrimSpace(word)); word != "" {
		p.used[word] = true
	}
}

// Used reports whether a word has been played.
func (p *Picker) Used(word string) bool {
	return p.used[strings.ToUpper(word)]
}

// Reset forgets every used word.
func (p *Picker) Reset() {
	p.used = make(map[string]bool)
}
