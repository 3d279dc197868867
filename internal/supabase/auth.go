package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/google/uuid"
)

// authStatus extracts the HTTP status the auth client folds into its error
// text. Returns 0 when err carries none.
func authStatus(err error) int {
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &code); scanErr != nil {
		return 0
	}
	return code
}

// Authenticate resolves a user access token to the user's id.
func (c *Client) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", domain.AuthenticationError("missing access token")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	user, err := c.auth.WithToken(accessToken).GetUser()
	if err != nil {
		var urlErr *url.Error
		switch status := authStatus(err); {
		case errors.As(err, &urlErr):
			return "", domain.ProviderError("auth service unreachable", err)
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return "", domain.AuthenticationError("invalid or expired session")
		case status >= 400:
			return "", domain.ProviderError(fmt.Sprintf("auth service returned status %d", status), nil)
		default:
			return "", domain.ProviderError("failed to decode auth response", err)
		}
	}

	if user.ID == uuid.Nil {
		return "", domain.AuthenticationError("session has no user")
	}

	return user.ID.String(), nil
}
