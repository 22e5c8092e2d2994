// Package auth provides the dev-mode identity verifier. Production
// deployments plug their own core.Identity backed by a real token service.
package auth

import (
	"context"
	"strings"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// TokenIdentity treats the client token as an opaque user id. It verifies
// shape only: non-empty, no whitespace, bounded length.
type TokenIdentity struct{}

func (TokenIdentity) Verify(_ context.Context, credential string) (domain.UserID, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(credential) > 64 || strings.ContainsAny(credential, " \t\n") {
		return "", core.ErrAuthentication
	}
	return domain.UserID(credential), nil
}

var _ core.Identity = TokenIdentity{}
