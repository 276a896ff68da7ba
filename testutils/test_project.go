package testutils

import (
	"os"
	"path/filepath"
)

// TestProject is a throwaway Java source tree for scan tests. Must call
// Close() to cleanup auxiliary files.
type TestProject struct {
	Path   string
	files  map[string]string
	onDisk bool
}

// NewTestProject creates an empty project rooted in a temp directory.
func NewTestProject() *TestProject {
	dir, err := os.MkdirTemp("", "sinktracer_test")
	if err != nil {
		return nil
	}
	return &TestProject{
		Path:  dir,
		files: make(map[string]string),
	}
}

// AddFile inserts a file with the given project-relative path.
func (p *TestProject) AddFile(rel, content string) {
	p.files[rel] = content
}

// Write persists all files to disk. Idempotent.
func (p *TestProject) Write() error {
	if p.onDisk {
		return nil
	}
	for rel, content := range p.files {
		abs := filepath.Join(p.Path, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil { //#nosec G306
			return err
		}
	}
	p.onDisk = true
	return nil
}

// RulesFile writes a rule document beside the project and returns its path.
func (p *TestProject) RulesFile(name, content string) (string, error) {
	abs := filepath.Join(p.Path, name)
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil { //#nosec G306
		return "", err
	}
	return abs, nil
}

// Close will delete the project from disk if it exists.
func (p *TestProject) Close() {
	if p.Path != "" {
		os.RemoveAll(p.Path)
	}
}
