// Package snapshot materializes package sources from per-package git
// repositories so that old and new states can be compared on disk.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// Source checks out a package at a revision into a local directory.
type Source interface {
	// Checkout writes the files of ref into dest. It returns an error
	// matching errors.ErrSnapshotNotFound when the package does not exist.
	Checkout(ctx context.Context, ref request.Identity, dest string) error
}

// GitSource reads packages from <root>/<project>/<package> repositories.
type GitSource struct {
	root string
}

// NewGitSource creates a GitSource rooted at root.
func NewGitSource(root string) *GitSource {
	return &GitSource{root: root}
}

// RepoPath returns the repository directory for a package.
func (s *GitSource) RepoPath(project, pkg string) string {
	return filepath.Join(s.root, project, pkg)
}

func (s *GitSource) Checkout(ctx context.Context, ref request.Identity, dest string) error {
	path := s.RepoPath(ref.Project, ref.Package)
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return errors.NewNotFoundError("package", ref.String()).WithCause(errors.ErrSnapshotNotFound)
		}
		return fmt.Errorf("open repo %s: %w", path, err)
	}

	rev := ref.Revision
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := resolveHash(repo, rev)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return errors.NewNotFoundError("revision", ref.String()+"@"+rev).WithCause(errors.ErrSnapshotNotFound)
		}
		return err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return fmt.Errorf("load commit %s: %w", hash, err)
	}
	files, err := commitObj.Files()
	if err != nil {
		return fmt.Errorf("list files of %s: %w", hash, err)
	}
	defer files.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create checkout dir: %w", err)
	}
	return files.ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return writeFile(dest, f)
	})
}

func resolveHash(repo *git.Repository, rev string) (plumbing.Hash, error) {
	if len(rev) == 40 && plumbing.IsHash(rev) {
		return plumbing.NewHash(rev), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve revision %s: %w", rev, err)
	}
	return *resolved, nil
}

func writeFile(dest string, f *object.File) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("file %q escapes checkout dir", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	switch f.Mode {
	case filemode.Submodule:
		return nil
	case filemode.Symlink:
		link, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read symlink %s: %w", f.Name, err)
		}
		return os.Symlink(link, target)
	}

	perm := os.FileMode(0o644)
	if f.Mode == filemode.Executable {
		perm = 0o755
	}
	reader, err := f.Reader()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer reader.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
