package moderation

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// WordList is the result of loading a censored words directory.
type WordList struct {
	Words     []string
	Languages []string
}

// LoadWords reads every "<lang>.txt" file of dir, one word per line.
// Duplicates across languages are merged. An empty result is an error.
func LoadWords(fsys fs.FS, dir string) (*WordList, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// Scanner handles \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if w := strings.TrimSpace(scanner.Text()); w != "" {
				unique[w] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, errors.ErrEmptyWords
	}
	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	slices.Sort(words)
	return &WordList{Words: words, Languages: languages}, nil
}
