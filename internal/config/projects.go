package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	yaml "go.yaml.in/yaml/v2"
)

// Project declares one project's session naming convention. A session
// belongs to the project when its stable window/tab title matches any
// pattern. Patterns use path.Match glob syntax; a pattern without glob
// metacharacters matches as a prefix, so "acme-api" covers
// "acme-api-worker-2" without needing an explicit "*".
type Project struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// Manifest is the declared set of projects, in priority order: the
// first matching project wins.
type Manifest struct {
	Projects []Project `yaml:"projects"`
}

// LoadManifest reads the YAML project manifest. A missing file yields
// an empty manifest: every session is then unmanaged.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("reading projects manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing projects manifest: %w", err)
	}
	for _, p := range m.Projects {
		if p.Name == "" {
			return nil, fmt.Errorf("projects manifest: project with empty name")
		}
	}
	return &m, nil
}

// Match implements the registry's ProjectMatcher: stable title in,
// project name out. Titles that match no declared pattern are
// unmanaged.
func (m *Manifest) Match(title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	for _, p := range m.Projects {
		for _, pat := range p.Patterns {
			if matchPattern(pat, title) {
				return p.Name, true
			}
		}
	}
	return "", false
}

func matchPattern(pattern, title string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, title)
		return err == nil && ok
	}
	return title == pattern || strings.HasPrefix(title, pattern+"-")
}
