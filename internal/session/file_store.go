package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// FileStore keeps the session as JSON in a user-only file.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*domain.Session, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var out domain.Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &out, nil
}

func (s FileStore) Save(session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return os.WriteFile(s.Path, raw, 0o600)
}

func (s FileStore) Clear() error {
	return removeIfExists(s.Path)
}

// FileMarker is a marker file. Placed in the runtime directory it is gone
// after a reboot or logout.
type FileMarker struct {
	Path string
}

func (m FileMarker) Present() bool {
	_, err := os.Stat(m.Path)
	return err == nil
}

func (m FileMarker) Set() error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o700); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	return os.WriteFile(m.Path, nil, 0o600)
}

func (m FileMarker) Clear() error {
	return removeIfExists(m.Path)
}

// RuntimeMarkerPath returns the marker location under XDG_RUNTIME_DIR, or the
// temp dir when that is unset.
func RuntimeMarkerPath(app string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", app, os.Getuid()))
	}
	return filepath.Join(dir, app, "session_active")
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
