package transport

import (
	"net/http"
	"strings"

	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// BuildActor returns middleware that constructs the authenticated Actor from
// the verified JWT claims and the org directory, then stores it in the
// request context. It must run after JWTAuthenticator.
//
// The identity provider writes the same person under different keys
// depending on code path, so the directory entry is located by trying the
// object id, the mail address, and the mail nickname in turn. A principal
// with no directory entry cannot hold a job level and is rejected.
func BuildActor(dir orgdir.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				WriteError(w, model.NewUnauthorizedError("Missing token claims"))
				return
			}

			actor := &model.Actor{
				ObjectID:    claimString(claims, "oid"),
				Email:       claimString(claims, "email"),
				Nickname:    claimString(claims, "nickname"),
				DisplayName: claimString(claims, "name"),
				Roles:       claimStringSlice(claims, "roles"),
			}
			if actor.Email == "" {
				actor.Email = claimString(claims, "preferred_username")
			}
			if actor.Nickname == "" && actor.Email != "" {
				actor.Nickname = mailNickname(actor.Email)
			}

			roster, err := dir.Roster(r.Context())
			if err != nil {
				WriteError(w, model.NewUpstreamError("Organization directory is unavailable"))
				return
			}
			node, found := findDirectoryEntry(actor, roster)
			if !found {
				WriteForbidden(w, "Principal is not registered in the organization directory")
				return
			}

			profile, err := dir.Profile(r.Context(), node.ID)
			if err != nil {
				WriteError(w, model.NewUpstreamError("Organization directory is unavailable"))
				return
			}

			actor.ObjectID = node.ID
			actor.JobLevel = node.JobLevel
			actor.Department = node.Department
			if actor.DisplayName == "" {
				actor.DisplayName = node.DisplayName
			}
			actor.Manager = profile.Manager
			actor.DirectReports = profile.DirectReports
			actor.DepartmentPeers = profile.DepartmentPeers

			if !actor.IsSafetyManager() && isListedSafetyManager(r, dir, node.ID) {
				actor.Roles = append(actor.Roles, model.RoleSafetyManager)
			}

			if err := actor.Validate(); err != nil {
				WriteForbidden(w, "Directory entry is incomplete")
				return
			}

			ctx := model.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// findDirectoryEntry locates the actor's directory entry by object id, mail
// address, or mail nickname, in that order of preference.
func findDirectoryEntry(actor *model.Actor, roster []model.OrgNode) (model.OrgNode, bool) {
	for _, node := range roster {
		if actor.ObjectID != "" && node.ID == actor.ObjectID {
			return node, true
		}
	}
	for _, node := range roster {
		if actor.Email != "" && strings.EqualFold(node.Mail, actor.Email) {
			return node, true
		}
	}
	for _, node := range roster {
		if actor.Nickname != "" && strings.EqualFold(mailNickname(node.Mail), actor.Nickname) {
			return node, true
		}
	}
	return model.OrgNode{}, false
}

// isListedSafetyManager reports whether the directory designates the node as
// a safety manager. A directory failure here only loses the role tag, never
// the request.
func isListedSafetyManager(r *http.Request, dir orgdir.Provider, nodeID string) bool {
	safety, err := dir.SafetyManagers(r.Context())
	if err != nil {
		return false
	}
	for _, node := range safety {
		if node.ID == nodeID {
			return true
		}
	}
	return false
}

// mailNickname returns the lowercase local part of a mail address.
func mailNickname(mail string) string {
	local, _, _ := strings.Cut(mail, "@")
	return strings.ToLower(local)
}
