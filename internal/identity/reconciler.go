// Package identity reconciles the engine's multi-valued identifier
// representations: whether an authenticated actor is the person a
// submission's confirmer fields refer to, and which roster entry a
// free-text driver name refers to.
package identity

import (
	"strings"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// MatchesConfirmer reports whether the actor is the person the submission's
// confirmer fields refer to. The upstream system writes the same logical
// identity under different keys depending on code path, so this is a
// deliberate OR over exact equalities; any single field agreement is
// sufficient and no field is authoritative.
//
// A recorded field only participates when it is populated: empty-vs-empty
// never matches, otherwise a submission with no confirmer at all would
// match any actor with an unset identifier.
//
// Known gap: a submission whose confirmer fields were populated
// inconsistently (e.g. only ConfirmedByName set, and not equal to any of
// the actor's name variants) matches nobody. Such submissions are only
// approvable through the safety-manager override; there is deliberately no
// fuzzy fallback here, because fuzzy matching would silently change who is
// authorized.
func MatchesConfirmer(actor *model.Actor, ref model.ConfirmerRef) bool {
	if actor == nil {
		return false
	}
	return eq(ref.ConfirmerID, actor.Nickname) ||
		eq(ref.ConfirmerID, actor.ObjectID) ||
		eq(ref.ConfirmerID, actor.Email) ||
		eq(ref.ConfirmerEmail, actor.Email) ||
		eq(ref.ConfirmedByName, actor.DisplayName) ||
		eq(ref.ConfirmedByName, actor.Nickname)
}

// eq is an exact, case-sensitive comparison that never matches empty
// values. Source values are pre-normalized upstream.
func eq(recorded, candidate string) bool {
	return recorded != "" && recorded == candidate
}

// ResolveDriver matches a free-text driver name against the roster by
// comparing the lowercase local part of each entry's mail address with the
// lowercase driver name. The first match wins. A false return means the
// driver is not registered in the roster.
func ResolveDriver(name string, roster []model.OrgNode) (model.OrgNode, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return model.OrgNode{}, false
	}
	for _, node := range roster {
		if localPart(node.Mail) == want {
			return node, true
		}
	}
	return model.OrgNode{}, false
}

// DriverKey returns the canonical driver key for a roster entry: the
// lowercase local part of its mail address. This is the key submissions are
// recorded under.
func DriverKey(node model.OrgNode) string {
	return localPart(node.Mail)
}

func localPart(mail string) string {
	at := strings.IndexByte(mail, '@')
	if at < 0 {
		return strings.ToLower(mail)
	}
	return strings.ToLower(mail[:at])
}
