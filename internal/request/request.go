// Package request defines the change requests and staging slots that the
// admission and staging engines operate on.
package request

import (
	"slices"
	"strings"
	"time"
)

// ActionKind is the type of a request action. Kinds not listed here are
// carried through as opaque strings.
type ActionKind string

const (
	Submit              ActionKind = "submit"
	Delete              ActionKind = "delete"
	AddRole             ActionKind = "add_role"
	ChangeDevel         ActionKind = "change_devel"
	MaintenanceIncident ActionKind = "maintenance_incident"
)

// State is the lifecycle state of a request on the remote service.
type State string

const (
	StateNew        State = "new"
	StateReview     State = "review"
	StateAccepted   State = "accepted"
	StateDeclined   State = "declined"
	StateSuperseded State = "superseded"
	StateRevoked    State = "revoked"
)

// IsOpen reports whether a request in this state belongs to the open set.
func (s State) IsOpen() bool {
	return s == StateNew || s == StateReview
}

// Identity names a package, optionally pinned to a revision.
type Identity struct {
	Project  string `yaml:"project"`
	Package  string `yaml:"package"`
	Revision string `yaml:"revision,omitempty"`
}

func (i Identity) String() string {
	if i.Package == "" {
		return i.Project
	}
	return i.Project + "/" + i.Package
}

// Action is a single change carried by a request.
type Action struct {
	Type   ActionKind `yaml:"type"`
	Source Identity   `yaml:"source"`
	Target Identity   `yaml:"target"`
}

// Request is an open change request together with the attributes derived
// for it by the catalog.
type Request struct {
	ID      int64
	State   State
	Actions []Action

	DevelProject  string
	DevelPackage  string
	Ring          string
	Ignored       bool
	IgnoreMessage string
	// Staging is the full name of the slot holding the request, if any.
	Staging string
}

// Primary returns the first action, or the zero Action for a request with
// none.
func (r Request) Primary() Action {
	if len(r.Actions) == 0 {
		return Action{}
	}
	return r.Actions[0]
}

// Type is the kind of the primary action.
func (r Request) Type() ActionKind { return r.Primary().Type }

// Project is the target project of the primary action.
func (r Request) Project() string { return r.Primary().Target.Project }

// Package is the target package of the primary action, falling back to
// the source package when the target leaves it implicit.
func (r Request) Package() string {
	a := r.Primary()
	if a.Target.Package != "" {
		return a.Target.Package
	}
	return a.Source.Package
}

// IsStaged reports whether the request is assigned to a staging slot.
func (r Request) IsStaged() bool { return r.Staging != "" }

// SortByID orders requests by ascending id in place.
func SortByID(reqs []Request) {
	slices.SortStableFunc(reqs, func(a, b Request) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// IDs returns the ids of reqs in order.
func IDs(reqs []Request) []int64 {
	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

// SlotState is the build state of a staging slot.
type SlotState string

const (
	SlotOpen       SlotState = "open"
	SlotBuilding   SlotState = "building"
	SlotFailed     SlotState = "failed"
	SlotAcceptable SlotState = "acceptable"
	SlotClosed     SlotState = "closed"
)

// ValidSlotStates lists every slot state.
func ValidSlotStates() []SlotState {
	return []SlotState{SlotOpen, SlotBuilding, SlotFailed, SlotAcceptable, SlotClosed}
}

// StagingSlot is a bounded holding area for requests awaiting promotion.
type StagingSlot struct {
	Name string
	// Capacity is the maximum number of member requests; zero or less
	// means unlimited.
	Capacity  int
	Bootstrap bool
	State     SlotState
	FrozenAt  time.Time
	Members   []int64
}

// Occupancy is the number of member requests.
func (s StagingSlot) Occupancy() int { return len(s.Members) }

// Unlimited reports whether the slot has no capacity bound.
func (s StagingSlot) Unlimited() bool { return s.Capacity <= 0 }

// Room returns how many more requests fit, or -1 when unlimited.
func (s StagingSlot) Room() int {
	if s.Unlimited() {
		return -1
	}
	if free := s.Capacity - len(s.Members); free > 0 {
		return free
	}
	return 0
}

// Fits reports whether n more requests fit into the slot.
func (s StagingSlot) Fits(n int) bool {
	return s.Unlimited() || len(s.Members)+n <= s.Capacity
}

// IsClosed reports whether the slot no longer accepts requests.
func (s StagingSlot) IsClosed() bool { return s.State == SlotClosed }

// Contains reports whether id is a member of the slot.
func (s StagingSlot) Contains(id int64) bool { return slices.Contains(s.Members, id) }

// DevelRelationship names the devel package that owns a target package.
type DevelRelationship struct {
	Project string
	Package string
}

func (d DevelRelationship) String() string { return d.Project + "/" + d.Package }

// LinkTarget names the package a linked package points at.
type LinkTarget struct {
	Project string
	Package string
}

func (l LinkTarget) String() string { return l.Project + "/" + l.Package }

const stagingInfix = ":Staging:"

// StagingProject expands a short staging name ("A", "adi:1") into the full
// project name under project. Full names are returned unchanged.
func StagingProject(project, name string) string {
	if strings.HasPrefix(name, project+stagingInfix) {
		return name
	}
	return project + stagingInfix + name
}

// ShortName strips the "<project>:Staging:" prefix from a full staging name.
func ShortName(project, name string) string {
	return strings.TrimPrefix(name, project+stagingInfix)
}
