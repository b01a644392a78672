package repositories

import (
	"chat-relay/contract"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

var _ contract.IdentityStore = (*FileIdentityStore)(nil)

// FileIdentityStore keeps the {phone: username} document in one JSON file.
// Saves write a temporary file next to it and rename it over the old one.
type FileIdentityStore struct {
	path string
	log  *slog.Logger
}

func NewFileIdentityStore(path string, log *slog.Logger) *FileIdentityStore {
	return &FileIdentityStore{path: path, log: log}
}

// Load returns an empty mapping when the file does not exist yet.
func (s *FileIdentityStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if goerrors.Is(err, fs.ErrNotExist) {
		s.log.Info("No identity file yet", "path", s.path)
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	identities := map[string]string{}
	if err := json.Unmarshal(data, &identities); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return identities, nil
}

func (s *FileIdentityStore) Save(ctx context.Context, identities map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(identities, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
