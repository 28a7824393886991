package exclusive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileLocker is a Locker backed by flock(2) on <dir>/<key>.lock. The owner
// is written into the lock file while held.
type FileLocker struct {
	path    string
	command string

	mu   sync.Mutex
	file *os.File
}

// NewFileLocker returns a FileLocker for key inside dir. command is
// recorded as part of the owner description.
func NewFileLocker(dir, key, command string) *FileLocker {
	return &FileLocker{
		path:    filepath.Join(dir, unsafeKeyChars.ReplaceAllString(key, "_")+".lock"),
		command: command,
	}
}

// Path returns the lock file path.
func (fl *FileLocker) Path() string { return fl.path }

// TryLock attempts to acquire the lock without blocking.
func (fl *FileLocker) TryLock(_ context.Context) (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		return false, fmt.Errorf("lock %s already held by this locker", fl.path)
	}
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	data, err := json.Marshal(currentOwner("", fl.command))
	if err == nil {
		if err = f.Truncate(0); err == nil {
			_, err = f.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return false, fmt.Errorf("record lock owner: %w", err)
	}

	fl.file = f
	return true, nil
}

// Unlock clears the owner record, releases the lock and closes the file.
func (fl *FileLocker) Unlock(_ context.Context) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}
	_ = fl.file.Truncate(0)

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}

// Holder reads the owner recorded in the lock file.
func (fl *FileLocker) Holder(_ context.Context) (string, error) {
	data, err := os.ReadFile(fl.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock file: %w", err)
	}
	return parseOwner(data)
}
