package filestore

// Package filestore provides a file-backed credential store for single-user
// deployments. Records survive process restarts.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	autherrors "github.com/dealdesk/sessioncore/internal/errors"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	"github.com/dealdesk/sessioncore/internal/ports"
)

// Store persists the credential record as a JSON file. Writes go through a
// temp file plus rename so a reader never observes a partial record.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ ports.CredentialStore = (*Store)(nil)

// NewStore creates a file-backed credential store at path. The parent
// directory is created on first save.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("credential store path is required")
	}
	return &Store{path: path}, nil
}

func (s *Store) Load(_ context.Context) (domainauth.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domainauth.CredentialRecord{}, ports.ErrNoRecord
		}
		return domainauth.CredentialRecord{}, fmt.Errorf("read credential file: %w", err)
	}

	var rec domainauth.CredentialRecord
	if unmarshalErr := json.Unmarshal(data, &rec); unmarshalErr != nil {
		return domainauth.CredentialRecord{}, autherrors.StoreCorrupt(unmarshalErr)
	}
	if !rec.Valid() {
		// A partial record is indistinguishable from a torn write.
		return domainauth.CredentialRecord{}, autherrors.StoreCorrupt(errors.New("incomplete credential record"))
	}

	return rec, nil
}

func (s *Store) Save(_ context.Context, rec domainauth.CredentialRecord) error {
	if !rec.Valid() {
		return errors.New("refusing to persist a partial credential record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal credential record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
		return fmt.Errorf("create credential dir: %w", mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()

	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credential file: %w", writeErr)
	}
	if chmodErr := tmp.Chmod(0o600); chmodErr != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod credential file: %w", chmodErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close credential file: %w", closeErr)
	}

	if renameErr := os.Rename(tmpName, s.path); renameErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credential file: %w", renameErr)
	}

	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
