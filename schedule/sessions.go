package schedule

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sessionsFile is the on-disk shape of a session config.
type sessionsFile struct {
	Sessions []Session `yaml:"sessions"`
}

// LoadSessions reads a YAML session config and validates every entry:
// names must be unique and non-empty, specs must parse, programs must be
// named.
func LoadSessions(path string) ([]Session, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading sessions file %s: %w", path, err)
	}

	var file sessionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sessions file %s: %w", path, err)
	}
	if len(file.Sessions) == 0 {
		return nil, fmt.Errorf("sessions file %s defines no sessions", path)
	}

	seen := make(map[string]bool, len(file.Sessions))
	for i, sess := range file.Sessions {
		if sess.Name == "" {
			return nil, fmt.Errorf("sessions[%d]: name is required", i)
		}
		if seen[sess.Name] {
			return nil, fmt.Errorf("sessions[%d]: duplicate name %q", i, sess.Name)
		}
		seen[sess.Name] = true
		if sess.Program == "" {
			return nil, fmt.Errorf("session %q: program is required", sess.Name)
		}
		if _, err := parseSpecUTC(sess.Spec); err != nil {
			return nil, fmt.Errorf("session %q: %w", sess.Name, err)
		}
	}

	return file.Sessions, nil
}
