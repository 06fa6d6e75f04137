// Package revision discovers the source revision a build is stamped with.
package revision

import (
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// ShortLength is the length of the abbreviated revision.
const ShortLength = 7

// Revision holds the full and abbreviated forms of a source revision.
type Revision struct {
	Full  string
	Short string
	// Detected is false when the fallback was used.
	Detected bool
}

// Fallback returns a Revision that uses tag for both forms.
func Fallback(tag string) Revision {
	return Revision{Full: tag, Short: tag}
}

// Resolve reads HEAD of the git work tree containing path.
// A path outside any repository, or a repository without commits, yields Fallback(fallback).
func Resolve(path, fallback string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			slog.Debug("No git repository found; using fallback revision",
				logfields.Path(path), logfields.Revision(fallback))
			return Fallback(fallback), nil
		}
		return Revision{}, ferrors.GitError("failed to open repository").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			slog.Debug("Repository has no commits; using fallback revision",
				logfields.Path(path), logfields.Revision(fallback))
			return Fallback(fallback), nil
		}
		return Revision{}, ferrors.GitError("failed to read HEAD").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	full := ref.Hash().String()
	return Revision{Full: full, Short: full[:ShortLength], Detected: true}, nil
}
