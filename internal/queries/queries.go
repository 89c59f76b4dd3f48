// Package queries holds the SQL scripts run by the process command.
//
// Scripts are embedded at build time. Setting SQL_DIR loads them from a
// directory instead, which allows tuning a script without rebuilding.
// A script's name is its file name without the .sql extension.
package queries

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var embedded embed.FS

// ErrNotFound is returned for a script name that is not in the set.
var ErrNotFound = errors.New("query not found")

// Set is an immutable collection of named SQL scripts.
type Set struct {
	scripts map[string]string
}

// Load reads scripts from dir, or the embedded scripts when dir is empty.
func Load(dir string) (*Set, error) {
	if dir == "" {
		sub, err := fs.Sub(embedded, "sql")
		if err != nil {
			return nil, fmt.Errorf("open embedded queries: %w", err)
		}
		return FromFS(sub)
	}
	return FromFS(os.DirFS(dir))
}

// FromFS reads every *.sql file at the root of fsys.
func FromFS(fsys fs.FS) (*Set, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("list queries: no .sql files found")
	}

	s := &Set{scripts: make(map[string]string, len(files))}
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read query %s: %w", f, err)
		}
		s.scripts[strings.TrimSuffix(path.Base(f), ".sql")] = string(b)
	}
	return s, nil
}

// Get returns the text of the named script.
func (s *Set) Get(name string) (string, error) {
	q, ok := s.scripts[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return q, nil
}

// Require checks that every name is present, reporting all that are missing.
func (s *Set) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := s.scripts[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// Names lists the scripts in lexical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.scripts))
	for n := range s.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
