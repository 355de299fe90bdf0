package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// manifest loading
// ---------------------------------------------------------------------------

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	content := `projects:
  - name: acme
    patterns:
      - "acme-api"
  - name: misc
    patterns:
      - "scratch-*"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(m.Projects))
	}
	if m.Projects[0].Name != "acme" {
		t.Errorf("first project = %s", m.Projects[0].Name)
	}
}

func TestLoadManifestMissingFileIsEmpty(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Projects) != 0 {
		t.Errorf("got %d projects from a missing file", len(m.Projects))
	}
	// Everything is unmanaged under an empty manifest.
	if _, ok := m.Match("anything"); ok {
		t.Error("empty manifest matched a title")
	}
}

func TestLoadManifestRejectsUnnamedProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(path, []byte("projects:\n  - patterns: [\"x\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for project with empty name")
	}
}

// ---------------------------------------------------------------------------
// title matching
// ---------------------------------------------------------------------------

func TestMatch(t *testing.T) {
	m := &Manifest{Projects: []Project{
		{Name: "acme", Patterns: []string{"acme-api"}},
		{Name: "billing", Patterns: []string{"bill-*", "billing"}},
	}}

	tests := []struct {
		title   string
		project string
		ok      bool
	}{
		// plain patterns match exactly or as a dash-joined prefix
		{"acme-api", "acme", true},
		{"acme-api-worker-2", "acme", true},
		{"acme-apish", "", false},
		{"billing", "billing", true},
		// glob patterns use path.Match semantics
		{"bill-invoices", "billing", true},
		{"bill", "", false},
		// no match -> unmanaged
		{"vim", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		project, ok := m.Match(tt.title)
		if ok != tt.ok || project != tt.project {
			t.Errorf("Match(%q) = %q,%v, want %q,%v", tt.title, project, ok, tt.project, tt.ok)
		}
	}
}

// Declaration order is priority order: the first project whose pattern
// matches wins.
func TestMatchFirstProjectWins(t *testing.T) {
	m := &Manifest{Projects: []Project{
		{Name: "narrow", Patterns: []string{"app-web"}},
		{Name: "broad", Patterns: []string{"app-*"}},
	}}
	if project, _ := m.Match("app-web"); project != "narrow" {
		t.Errorf("Match = %q, want narrow", project)
	}
	if project, _ := m.Match("app-api"); project != "broad" {
		t.Errorf("Match = %q, want broad", project)
	}
}
