package moderation

import (
	"chat-relay/errors"
	"log/slog"
	"os"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary avoids short words that collide inside others ("he" in "The")
func TestModerator_Inspect(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{"single word", "The badger is here", "The ****** is here", []string{"badger"}},
		{"repeated word keeps spacing", "badger badger", "****** ******", []string{"badger", "badger"}},
		{"leet and inner punctuation", "Look at B.4.d.g.€r !", "Look at ********** !", []string{"badger"}},
		{"uppercase with dashes", "S-N-A-K-E here", "********* here", []string{"snake"}},
		{"trailing punctuation untouched", "I love badger!", "I love ******!", []string{"badger"}},
		{"accents untouched", "Un été avec un badger", "Un été avec un ******", []string{"badger"}},
		{"nothing to censor", "hello world", "hello world", nil},
		{"empty", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked, words := mod.Inspect(tt.input)
			req.Equal(tt.expected, masked)
			req.Equal(tt.words, words)
			req.Equal(tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModerator_IgnoresNoiseOnlyWords(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary polluted with punctuation-only entries
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"}, replacementChar, log)
	req.NoError(err)

	// Then punctuation in messages is left alone
	req.Equal("Hello ...", mod.Censor("Hello ..."))
	req.Equal("The ****** is safe", mod.Censor("The badger is safe"))
}

func TestLoadWords(t *testing.T) {
	req := require.New(t)
	fsys := os.DirFS("testdata")

	// When loading a directory holding two languages sharing a word
	list, err := LoadWords(fsys, "censored")
	req.NoError(err)

	// Then words are deduplicated and sorted regardless of line endings
	req.Equal([]string{"badger", "champignon", "snake"}, list.Words)
	req.ElementsMatch([]string{"en", "fr"}, list.Languages)
}

func TestLoadWords_EmptyDictionary(t *testing.T) {
	req := require.New(t)

	_, err := LoadWords(os.DirFS("testdata"), "empty")
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestLoadWords_MissingDirectory(t *testing.T) {
	req := require.New(t)

	_, err := LoadWords(os.DirFS("testdata"), "missing")
	req.Error(err)
}
