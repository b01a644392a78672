// Package moderation masks censored words in message bodies.
package moderation

import (
	"chat-relay/contract"
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

var _ contract.Moderator = (*Moderator)(nil)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// folded is the searchable form of a text: lowercased, leet mapped back to
// letters, noise removed. positions[i] is the rune index in the original text.
type folded struct {
	runes     []rune
	positions []int
}

// NewModerator builds the automaton over the folded censored words.
// Words made only of noise are ignored.
func NewModerator(words []string, replacement rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if p := fold(w).runes; len(p) > 0 {
			patterns = append(patterns, p)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(patterns))
	return &Moderator{matcher: m, replacement: replacement, log: log}, nil
}

// Censor replaces every rune covered by a censored word, keeping the
// separators between them.
func (m *Moderator) Censor(text string) string {
	masked, _ := m.Inspect(text)
	return masked
}

// Inspect returns the masked text and the censored words found, in order.
func (m *Moderator) Inspect(text string) (string, []string) {
	f := fold(text)
	if len(f.runes) == 0 {
		return text, nil
	}
	hits := m.matcher.MultiPatternSearch(f.runes, false)
	if len(hits) == 0 {
		return text, nil
	}

	out := []rune(text)
	var found []string
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(f.positions) {
			continue
		}
		for i := f.positions[hit.Pos]; i <= f.positions[end-1]; i++ {
			out[i] = m.replacement
		}
		found = append(found, string(hit.Word))
	}
	if len(found) > 0 {
		m.log.Debug("Message censored", "words", len(found))
	}
	return string(out), found
}

func fold(text string) folded {
	src := []rune(text)
	f := folded{runes: make([]rune, 0, len(src)), positions: make([]int, 0, len(src))}
	for i, r := range src {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.positions = append(f.positions, i)
	}
	return f
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
