package repo

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settings is the repository configuration stored in .jig/config.toml.
type Settings struct {
	User      UserSettings            `toml:"user"`
	Operation OperationSettings       `toml:"operation"`
	Storage   StorageSettings         `toml:"storage"`
	Signing   SigningSettings         `toml:"signing"`
	Log       LogSettings             `toml:"log"`
	Bookmarks BookmarkSettings        `toml:"bookmarks"`
	Remotes   map[string]RemoteConfig `toml:"remotes"`
}

type UserSettings struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// OperationSettings overrides the host and user recorded on operations.
type OperationSettings struct {
	Hostname string `toml:"hostname"`
	Username string `toml:"username"`
}

// StorageSettings selects the object backend: "file" or "sqlite".
type StorageSettings struct {
	Backend string `toml:"backend"`
}

// SigningSettings names an SSH private key used to sign new commits.
type SigningSettings struct {
	Key  string `toml:"key"`
	Sign bool   `toml:"sign"`
}

type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// BookmarkSettings controls remote bookmark import.
type BookmarkSettings struct {
	// AutoTrack tracks remote bookmarks the first time they are fetched.
	AutoTrack bool `toml:"auto_track"`
}

type RemoteConfig struct {
	URL string `toml:"url"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultSettings returns settings with every default filled in.
func DefaultSettings() *Settings {
	return &Settings{
		Storage: StorageSettings{Backend: BackendFile},
		Log:     LogSettings{Level: "warn", Format: "text"},
		Remotes: make(map[string]RemoteConfig),
	}
}

// LoadSettings reads path over the defaults and applies JIG_USER,
// JIG_EMAIL and JIG_LOG_LEVEL. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if _, err := toml.Decode(string(data), s); err != nil {
			return nil, fmt.Errorf("read config: decode TOML: %w", err)
		}
	}
	s.applyEnvOverrides()
	if s.Remotes == nil {
		s.Remotes = make(map[string]RemoteConfig)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return s, nil
}

func (s *Settings) applyEnvOverrides() {
	if v := os.Getenv("JIG_USER"); v != "" {
		s.User.Name = v
	}
	if v := os.Getenv("JIG_EMAIL"); v != "" {
		s.User.Email = v
	}
	if v := os.Getenv("JIG_LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
}

// Validate checks enumerated values.
func (s *Settings) Validate() error {
	switch s.Storage.Backend {
	case "", BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", s.Storage.Backend)
	}
	for name, rc := range s.Remotes {
		if strings.TrimSpace(rc.URL) == "" {
			return fmt.Errorf("remotes.%s: url is required", name)
		}
	}
	return nil
}

// Save atomically writes s to path.
func (s *Settings) Save(path string) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetRemote stores or updates a named remote URL.
func (s *Settings) SetRemote(name, url string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}
	if s.Remotes == nil {
		s.Remotes = make(map[string]RemoteConfig)
	}
	s.Remotes[name] = RemoteConfig{URL: url}
	return nil
}

// RemoteURL returns the configured URL for a remote.
func (s *Settings) RemoteURL(name string) (string, error) {
	rc, ok := s.Remotes[strings.TrimSpace(name)]
	if !ok || strings.TrimSpace(rc.URL) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.URL, nil
}

// Hostname returns the host recorded on operations.
func (s *Settings) Hostname() string {
	if s.Operation.Hostname != "" {
		return s.Operation.Hostname
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Username returns the user recorded on operations.
func (s *Settings) Username() string {
	if s.Operation.Username != "" {
		return s.Operation.Username
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "unknown"
}
