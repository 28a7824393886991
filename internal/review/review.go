// Package review models admission verdicts and the reviewer escalations
// that accompany them.
package review

import (
	"context"
	"fmt"
)

// Kind distinguishes group reviewers from individual users.
type Kind string

const (
	ByGroup Kind = "group"
	ByUser  Kind = "user"
)

// Target is a reviewer that can be attached to a request.
type Target struct {
	Kind Kind
	Name string
}

// Group returns a group review target.
func Group(name string) Target { return Target{Kind: ByGroup, Name: name} }

// User returns a user review target.
func User(name string) Target { return Target{Kind: ByUser, Name: name} }

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.Name)
}

// Escalation asks an additional reviewer to look at a request.
type Escalation struct {
	Target  Target
	Message string
}

// Messages attached to escalations.
const (
	ReviewSourcesMessage = "Please review sources"
	ReviewBuildMessage   = "Please review build success"
)

// Status is the outcome of admission.
type Status string

const (
	Accepted Status = "accepted"
	Declined Status = "declined"
)

// Verdict is the result of validating one request.
type Verdict struct {
	Status      Status
	Message     string
	Escalations []Escalation
}

// Accept returns an accepting verdict.
func Accept(message string, escalations ...Escalation) Verdict {
	return Verdict{Status: Accepted, Message: message, Escalations: escalations}
}

// Decline returns a declining verdict.
func Decline(message string) Verdict {
	return Verdict{Status: Declined, Message: message}
}

// IsAccepted reports whether the verdict accepts the request.
func (v Verdict) IsAccepted() bool { return v.Status == Accepted }

// Tracker records review state for requests. AddReview must be idempotent
// for a target already present on the request.
type Tracker interface {
	AddReview(ctx context.Context, requestID int64, target Target, message string) error
	RecordVerdict(ctx context.Context, requestID int64, verdict Verdict) error
}

// Apply records verdict for requestID and then adds its escalations in
// order. It stops at the first failure.
func Apply(ctx context.Context, tracker Tracker, requestID int64, verdict Verdict) error {
	if err := tracker.RecordVerdict(ctx, requestID, verdict); err != nil {
		return fmt.Errorf("record verdict for %d: %w", requestID, err)
	}
	for _, esc := range verdict.Escalations {
		if err := tracker.AddReview(ctx, requestID, esc.Target, esc.Message); err != nil {
			return fmt.Errorf("add review %s to %d: %w", esc.Target, requestID, err)
		}
	}
	return nil
}
