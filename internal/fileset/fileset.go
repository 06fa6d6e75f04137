// Package fileset resolves named glob groups into concrete file lists.
//
// Patterns use doublestar syntax ("*.scss", "js/**/*.js", "**/*.{png,jpg}") and are
// evaluated relative to the fileset's base directory. A file is a member when it
// matches any include pattern and no exclude pattern.
package fileset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
)

// FileSet is a named group of include/exclude patterns rooted at Base.
// It is immutable after construction.
type FileSet struct {
	Name    string
	Base    string // absolute directory
	Include []string
	Exclude []string
}

// New constructs a FileSet after validating its patterns. base is made absolute.
func New(name, base string, include, exclude []string) (FileSet, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return FileSet{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve fileset base").
			WithContext("fileset", name).
			Build()
	}
	fs := FileSet{
		Name:    name,
		Base:    abs,
		Include: slices.Clone(include),
		Exclude: slices.Clone(exclude),
	}
	if err := fs.Validate(); err != nil {
		return FileSet{}, err
	}
	return fs, nil
}

// Validate reports malformed patterns.
func (s FileSet) Validate() error {
	if len(s.Include) == 0 {
		return ferrors.ValidationError("fileset has no include patterns").
			WithContext("fileset", s.Name).
			Build()
	}
	for _, p := range slices.Concat(s.Include, s.Exclude) {
		if !doublestar.ValidatePattern(p) {
			return ferrors.ValidationError("invalid glob pattern").
				WithContext("fileset", s.Name).
				WithContext("pattern", p).
				Build()
		}
	}
	return nil
}

// Matches reports whether the absolute path is a member of the set. Only the
// patterns are consulted; the file does not need to exist (deleted files still
// produce watch events).
func (s FileSet) Matches(path string) bool {
	rel, ok := s.relative(path)
	if !ok {
		return false
	}
	return s.matchRel(rel)
}

func (s FileSet) matchRel(rel string) bool {
	included := false
	for _, p := range s.Include {
		if doublestar.MatchUnvalidated(p, rel) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range s.Exclude {
		if doublestar.MatchUnvalidated(p, rel) {
			return false
		}
	}
	return true
}

// relative returns path relative to Base in slash form, or false when path is outside Base.
func (s FileSet) relative(path string) (string, bool) {
	rel, err := filepath.Rel(s.Base, path)
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Rel returns path relative to the set's base directory (OS separators).
// Paths outside the base fall back to their base name.
func (s FileSet) Rel(path string) string {
	if rel, ok := s.relative(path); ok {
		return filepath.FromSlash(rel)
	}
	return filepath.Base(path)
}

// Resolver expands filesets against the live filesystem.
// It keeps no state; every Resolve call walks the directory tree again.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve returns the absolute paths of all regular files in the set, sorted
// lexicographically. A missing base directory or a pattern matching nothing
// yields an empty result, not an error.
func (r *Resolver) Resolve(s FileSet) ([]string, error) {
	info, err := os.Stat(s.Base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat fileset base").
			WithContext("fileset", s.Name).
			Build()
	}
	if !info.IsDir() {
		return nil, ferrors.FileSystemError("fileset base is not a directory").
			WithContext("fileset", s.Name).
			WithContext("base", s.Base).
			Build()
	}

	fsys := os.DirFS(s.Base)
	seen := make(map[string]struct{})
	for _, pattern := range s.Include {
		err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
			if d.IsDir() {
				return nil
			}
			if s.matchRel(p) {
				seen[p] = struct{}{}
			}
			return nil
		}, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve fileset").
				WithContext("fileset", s.Name).
				WithContext("pattern", pattern).
				Build()
		}
	}

	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, filepath.Join(s.Base, filepath.FromSlash(rel)))
	}
	slices.Sort(out)
	return out, nil
}
