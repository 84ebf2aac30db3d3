package model

import (
	"context"
	"errors"
	"fmt"
)

// Role names understood by the engine.
const (
	// RoleSafetyManager is the company-wide override role. A safety manager
	// appears in every actor's eligible-confirmer set and may approve any
	// submission regardless of hierarchy.
	RoleSafetyManager = "safety_manager"
)

// OrgNode is a read-only snapshot of one person in the organizational
// hierarchy, as supplied by the external org directory.
type OrgNode struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Mail        string `json:"mail" yaml:"mail"`
	JobLevel    int    `json:"job_level" yaml:"job_level"`
	Department  string `json:"department" yaml:"department"`
}

// Actor is the authenticated principal attempting to view or act. It is a
// bag of candidate identifiers: the upstream identity system writes the same
// logical person under different keys depending on code path, so no single
// field is authoritative. The engine never mutates an Actor; it is supplied
// wholesale by the identity provider with the hierarchy fields pre-resolved.
type Actor struct {
	Nickname    string `json:"nickname"`
	Email       string `json:"email"`
	ObjectID    string `json:"object_id"`
	DisplayName string `json:"display_name"`

	JobLevel   int      `json:"job_level"`
	Department string   `json:"department"`
	Roles      []string `json:"roles"`

	Manager         *OrgNode  `json:"manager,omitempty"`
	DirectReports   []OrgNode `json:"direct_reports,omitempty"`
	DepartmentPeers []OrgNode `json:"department_peers,omitempty"`
}

// Validate checks that the actor carries at least one usable identifier and
// a plausible job level.
func (a *Actor) Validate() error {
	var errs []error
	if a.Nickname == "" && a.Email == "" && a.ObjectID == "" {
		errs = append(errs, fmt.Errorf("at least one of Nickname, Email, ObjectID is required"))
	}
	if a.JobLevel < 1 {
		errs = append(errs, fmt.Errorf("JobLevel must be >= 1, got %d", a.JobLevel))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasRole returns true if the actor holds the given role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsSafetyManager reports whether the actor holds the company-wide override
// role.
func (a *Actor) IsSafetyManager() bool {
	return a.HasRole(RoleSafetyManager)
}

type actorKey struct{}

// WithActor attaches an Actor to the given context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the Actor from the context, or returns nil if not
// present.
func ActorFrom(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey{}).(*Actor)
	return actor
}

// MustActor extracts the Actor from the context, panicking if it is not
// present. This is safe to call in handlers that are guaranteed to run
// behind the authentication middleware.
func MustActor(ctx context.Context) *Actor {
	actor := ActorFrom(ctx)
	if actor == nil {
		panic("model: Actor not found in context")
	}
	return actor
}
