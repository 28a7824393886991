// Package exclusive provides the cross-invocation advisory lock that guards
// every mutating staging operation on a project.
package exclusive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Locker is a named lock shared between processes. TryLock never blocks.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	// Holder describes the current owner, or "" when unknown.
	Holder(ctx context.Context) (string, error)
}

// LeaseLocker is a Locker whose hold can lapse while held. Lost returns a
// channel closed once the current hold is gone, or nil when nothing is held.
type LeaseLocker interface {
	Locker
	Lost() <-chan struct{}
}

// owner is recorded alongside a held lock so contenders can report who
// holds it.
type owner struct {
	Token     string    `json:"token,omitempty"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func currentOwner(token, command string) owner {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return owner{
		Token:     token,
		PID:       os.Getpid(),
		Hostname:  hostname,
		Command:   command,
		StartedAt: time.Now().UTC(),
	}
}

func (o owner) describe() string {
	s := fmt.Sprintf("PID %d on %s since %s", o.PID, o.Hostname, o.StartedAt.Format(time.RFC3339))
	if o.Command != "" {
		s += " (" + o.Command + ")"
	}
	return s
}

func parseOwner(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var o owner
	if err := json.Unmarshal(data, &o); err != nil {
		return "", fmt.Errorf("failed to parse lock owner: %w", err)
	}
	return o.describe(), nil
}
