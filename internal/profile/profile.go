// Package profile loads the Tools Table (variant -> {command, base
// args}) and the per-caller Profile (env overrides, working directory)
// from YAML: one shared tools.yaml plus one shared profiles.yaml,
// rather than one registration file per project.
package profile

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fyplabs/sessiond/internal/session"
)

// ToolEntry is one row of tools.yaml.
type ToolEntry struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// toolsFile is the top-level shape of tools.yaml: variant key -> entry.
type toolsFile map[string]ToolEntry

// variantKeys maps tools.yaml's descriptive keys to the session
// package's short Variant values.
var variantKeys = map[string]session.Variant{
	"variant-a": session.VariantA,
	"variant-b": session.VariantB,
	"variant-c": session.VariantC,
}

// LoadTools reads a tools.yaml file and returns it as a session.Tools
// table ready to hand to session.NewRegistry. Unknown variant keys are
// rejected so a typo in the config surfaces at startup, not at
// first-use.
func LoadTools(path string) (session.Tools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools config %s: %w", path, err)
	}

	var raw toolsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tools config %s: %w", path, err)
	}

	out := make(session.Tools, len(raw))
	for key, entry := range raw {
		v, ok := variantKeys[key]
		if !ok {
			return nil, fmt.Errorf("tools config %s: unknown variant %q", path, key)
		}
		out[v] = session.CommandSpec{Command: entry.Command, Args: entry.Args}
	}
	return out, nil
}

// Profile is a per-caller bundle of environment overrides and working
// directory, keyed by the opaque profileId passed through CreateOptions.
type Profile struct {
	Env string            `yaml:"-"`
	Cwd string            `yaml:"cwd"`
	Vars map[string]string `yaml:"env"`
}

// Store holds every known Profile, keyed by profile id. It remembers the
// path it was loaded from so Reload can re-read the same file in place,
// letting a running daemon pick up edited workspace profiles without a
// restart.
type Store struct {
	path string

	mu       sync.RWMutex
	profiles map[string]Profile
}

// LoadProfiles reads profiles.yaml: a map of profileId -> {cwd, env}.
func LoadProfiles(path string) (*Store, error) {
	profiles, err := readProfiles(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, profiles: profiles}, nil
}

func readProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Profile{}, nil
		}
		return nil, fmt.Errorf("read profiles config %s: %w", path, err)
	}

	var raw map[string]Profile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles config %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]Profile{}
	}
	return raw, nil
}

// Get returns the Profile for id, or the zero Profile if id is empty or
// unknown — callers fall back to the supervisor cwd and an empty
// override map in that case.
func (s *Store) Get(id string) Profile {
	if s == nil || id == "" {
		return Profile{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[id]
}

// Reload re-reads the store's backing profiles.yaml and swaps its
// contents in place, so concurrent Get calls from in-flight createSession
// requests never observe a half-updated map. Intended to be driven by the
// daemon's SIGHUP handler and to publish workspaces.changed afterward.
func (s *Store) Reload() error {
	if s == nil {
		return nil
	}
	profiles, err := readProfiles(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}
