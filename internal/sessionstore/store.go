// Package sessionstore persists session artifacts as JSON files. Writes go
// through a temp file and rename so a crash mid-write never clobbers a
// previously good artifact.
package sessionstore

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store reads and writes session artifacts.
type Store struct {
	logger *zap.Logger
}

// NewStore returns a Store logging under the given logger.
func NewStore(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Store{logger: logger.Named("sessionstore")}, nil
}

// Save writes the artifact to path atomically, creating parent directories
// as needed. Failures surface as *schemas.PersistenceError and leave any
// existing artifact at path untouched.
func (s *Store) Save(artifact *schemas.SessionArtifact, path string) error {
	if artifact == nil {
		return &schemas.PersistenceError{Path: path, Err: fmt.Errorf("artifact must not be nil")}
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return &schemas.PersistenceError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &schemas.PersistenceError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &schemas.PersistenceError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &schemas.PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &schemas.PersistenceError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return &schemas.PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &schemas.PersistenceError{Path: path, Err: err}
	}

	s.logger.Info("Session artifact saved.",
		zap.String("path", path),
		zap.Int("cookies", len(artifact.Cookies)))
	return nil
}

// Load reads the artifact at path. A missing file is not an error and
// returns (nil, nil); an unreadable file is a *schemas.PersistenceError and
// an unparseable one a *schemas.CorruptSessionError.
func (s *Store) Load(path string) (*schemas.SessionArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("No session artifact on disk.", zap.String("path", path))
			return nil, nil
		}
		return nil, &schemas.PersistenceError{Path: path, Err: err}
	}

	if len(data) == 0 {
		return nil, &schemas.CorruptSessionError{Path: path, Err: fmt.Errorf("artifact file is empty")}
	}

	var artifact schemas.SessionArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &schemas.CorruptSessionError{Path: path, Err: err}
	}

	s.logger.Debug("Session artifact loaded.",
		zap.String("path", path),
		zap.Time("created_at", artifact.CreatedAt),
		zap.Int("cookies", len(artifact.Cookies)))
	return &artifact, nil
}
