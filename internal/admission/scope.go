package admission

import (
	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
)

// ResolveUserID implements the scope-resolution rule: a user-scoped key
// forces its bound identity; a project-scoped key requires the caller
// to supply one. Returns forbidden if a user-scoped key is asked to act
// as someone else, bad_request if a project-scoped key supplies none.
func ResolveUserID(key *metadatastore.APIKey, requested string) (string, error) {
	if key.UserID != nil && *key.UserID != "" {
		bound := *key.UserID
		if requested != "" && requested != bound {
			return "", apperr.New(apperr.KindForbidden, "this API key is bound to user '"+bound+"'; it cannot act on behalf of another user")
		}
		return bound, nil
	}

	if requested == "" {
		return "", apperr.New(apperr.KindBadRequest, "user_id is required for project-scoped API keys")
	}
	return requested, nil
}

// ResolveCurrentUserID implements GET /users/me/stats: only a
// user-scoped key may use it, since there is no bound identity to fall
// back to for a project-scoped key.
func ResolveCurrentUserID(key *metadatastore.APIKey) (string, error) {
	if key.UserID == nil || *key.UserID == "" {
		return "", apperr.New(apperr.KindBadRequest, "this endpoint requires a user-scoped API key")
	}
	return *key.UserID, nil
}
