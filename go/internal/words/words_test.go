package words

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickPrefersUnusedWordOfLength(t *testing.T) {
	p := NewPicker([]string{"cat", "horse", "dog", "mouse"})

	assert.Equal(t, "HORSE", p.Pick(5))
	assert.Equal(t, "MOUSE", p.Pick(5))
	assert.True(t, p.Used("horse"))

	// Both five letter words used: a repeat keeps the mask length.
	assert.Len(t, p.Pick(5), 5)
}

func TestPickAnyLength(t *testing.T) {
	p := NewPicker([]string{"cat", "dog"})
	p.MarkUsed("cat")

	assert.Equal(t, "DOG", p.Pick(0))
	// Everything used: the list starts over.
	assert.Equal(t, "CAT", p.Pick(0))
}

func TestDefaultsUsedForEmptyList(t *testing.T) {
	p := NewPicker(nil)
	assert.Equal(t, "PROGRAM", p.Pick(7))
	assert.Equal(t, "HANGMAN", p.Pick(7))
}
