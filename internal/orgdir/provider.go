// Package orgdir serves the organizational-hierarchy snapshot the approval
// rules are evaluated against. The directory is read-only: eligibility is
// always derived from a point-in-time snapshot, never written back.
package orgdir

import (
	"context"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// Profile is one person's position in the hierarchy with the relations the
// approval rules need pre-resolved.
type Profile struct {
	Node            model.OrgNode
	Manager         *model.OrgNode
	DirectReports   []model.OrgNode
	DepartmentPeers []model.OrgNode
}

// Provider exposes the org snapshot.
type Provider interface {
	// Roster returns every person in the snapshot.
	Roster(ctx context.Context) ([]model.OrgNode, error)

	// SafetyManagers returns the designated safety managers.
	SafetyManagers(ctx context.Context) ([]model.OrgNode, error)

	// Profile resolves one person by directory id. A missing id yields a
	// NOT_FOUND error.
	Profile(ctx context.Context, id string) (Profile, error)
}
