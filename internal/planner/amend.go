package planner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/logging"
)

// Amender hands a rendered proposal to an external actor and returns the
// edited document. It returns errors.ErrProposalAborted when the actor
// cancels.
type Amender interface {
	Amend(ctx context.Context, doc []byte) ([]byte, error)
}

// AmenderFunc adapts a function to Amender.
type AmenderFunc func(ctx context.Context, doc []byte) ([]byte, error)

// Amend calls f.
func (f AmenderFunc) Amend(ctx context.Context, doc []byte) ([]byte, error) { return f(ctx, doc) }

// Wrapper for exec to allow testing
var execCommandContext = exec.CommandContext

// fallbackEditor opens the document with the desktop default handler. It
// returns before the file is saved.
const fallbackEditor = "xdg-open"

// EditorAmender opens the proposal in the user's editor.
type EditorAmender struct {
	// Command overrides $EDITOR and $VISUAL.
	Command string
	// WaitForWrite waits for the file to be saved after the editor process
	// returns, for editors that detach.
	WaitForWrite bool
	Logger       *logging.Logger
}

// Editor returns the editor command line that will be used.
func (a *EditorAmender) Editor() string {
	for _, candidate := range []string{a.Command, os.Getenv("EDITOR"), os.Getenv("VISUAL")} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return fallbackEditor
}

func (a *EditorAmender) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.NopLogger()
	}
	return a.Logger
}

// Amend writes doc to a temporary file, runs the editor on it and returns
// the saved contents. An empty result or a failing editor aborts.
func (a *EditorAmender) Amend(ctx context.Context, doc []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "stagectl-proposal-")
	if err != nil {
		return nil, fmt.Errorf("create proposal dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "proposal.yml")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		return nil, fmt.Errorf("write proposal: %w", err)
	}

	editor := a.Editor()
	args := strings.Fields(editor)
	wait := a.WaitForWrite || args[0] == fallbackEditor

	var watcher *fsnotify.Watcher
	if wait {
		// Watch before launching so a quick save is not missed.
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch proposal dir: %w", err)
		}
	}

	a.logger().Info("opening proposal in editor", "editor", editor, "file", path)
	cmd := execCommandContext(ctx, args[0], append(args[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("editor exited with error: %v: %w", err, errors.ErrProposalAborted)
	}

	if wait {
		if err := waitForWrite(ctx, watcher, path); err != nil {
			return nil, err
		}
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	if len(bytes.TrimSpace(edited)) == 0 {
		return nil, errors.ErrProposalAborted
	}
	return edited, nil
}

func waitForWrite(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	target := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for proposal: %v: %w", ctx.Err(), errors.ErrProposalAborted)
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.ErrProposalAborted
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
			if event.Op&fsnotify.Remove != 0 {
				return errors.ErrProposalAborted
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.ErrProposalAborted
			}
			return fmt.Errorf("watch proposal: %w", err)
		}
	}
}
