package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// FileStore persists sessions as pretty-printed JSON files under Dir,
// the default backend when no Postgres DSN is configured.
type FileStore struct {
	Dir string
	log zerolog.Logger
}

func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir %s: %w", dir, err)
	}
	return &FileStore{Dir: dir, log: log}, nil
}

// Save writes state to its stable filename, choosing one on first save
// and keeping it on every subsequent save of the same session.
func (s *FileStore) Save(ctx context.Context, state *model.SessionState) error {
	filename := state.SessionFilename
	if filename == "" {
		filename = s.chooseFilename(state)
		state.SessionFilename = filename
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	path := filepath.Join(s.Dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session file %s: %w", path, err)
	}
	s.log.Info().Str("filename", filename).Msg("session saved")
	return nil
}

func (s *FileStore) chooseFilename(state *model.SessionState) string {
	if id := strings.TrimSpace(state.SessionID); id != "" {
		return id + ".json"
	}
	bastionName := "unnamed"
	if state.Bastion != nil && state.Bastion.Name != "" {
		bastionName = state.Bastion.Name
	}
	return fmt.Sprintf("session_%s_%s.json", sanitizeName(bastionName), timestampNow())
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == ' ' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if out == "" {
		return "unnamed"
	}
	return out
}

func timestampNow() string {
	return time.Now().Format("20060102_150405")
}

// Load reads filename (or, failing an exact match, the first file whose
// name contains it) and unmarshals it into a SessionState.
func (s *FileStore) Load(ctx context.Context, filename string) (*model.SessionState, error) {
	path := filepath.Join(s.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		matches, globErr := filepath.Glob(filepath.Join(s.Dir, "*"+filename+"*"))
		if globErr != nil || len(matches) == 0 {
			return nil, fmt.Errorf("session file not found: %s", filename)
		}
		path = matches[0]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file %s: %w", path, err)
	}
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", path, err)
	}
	state.SessionFilename = filepath.Base(path)
	return &state, nil
}

// LoadLatest loads the most recently modified session file, per the
// original implementation's "latest by mtime" rule.
func (s *FileStore) LoadLatest(ctx context.Context) (*model.SessionState, error) {
	name, err := s.latestFilename()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("no sessions available")
	}
	return s.Load(ctx, name)
}

func (s *FileStore) latestFilename() (string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", fmt.Errorf("read sessions dir: %w", err)
	}
	var latestName string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latestName = e.Name()
		}
	}
	return latestName, nil
}

// List returns session filenames matching the "session_*.json" naming
// convention in reverse lexical order. The bastion name precedes the
// timestamp in those names, so the order is chronological only among
// sessions of the same bastion.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "session_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Delete removes filename from the sessions directory.
func (s *FileStore) Delete(ctx context.Context, filename string) error {
	path := filepath.Join(s.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("session not found: %s", filename)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete session file %s: %w", path, err)
	}
	s.log.Info().Str("filename", filename).Msg("session deleted")
	return nil
}
