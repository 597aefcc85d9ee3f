// Package authtoken hands callers a live access token for an account,
// transparently refreshing it against Google's token endpoint the same
// way internal/auth/service/oauth builds an *oauth2.Config and exchanges
// tokens, but for the background refresh path rather than the initial
// login exchange. Concurrent callers for the same account collapse onto
// one in-flight refresh via golang.org/x/sync/singleflight, so a burst of
// sync-engine goroutines waking up against an expired token does not
// hammer Google with redundant refresh calls.
package authtoken

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

// expirySkew is how long before the stored expiry we proactively refresh,
// so a caller never hands out a token that expires mid-request.
const expirySkew = 2 * time.Minute

type Accessor struct {
	tokens store.TokenStore
	oauth  *oauth2.Config
	group  singleflight.Group
}

func NewAccessor(tokens store.TokenStore, oauthConfig *oauth2.Config) *Accessor {
	return &Accessor{tokens: tokens, oauth: oauthConfig}
}

// Get returns a valid access token for accountID, refreshing it first if
// it is at or past its skewed expiry.
func (a *Accessor) Get(ctx context.Context, accountID string) (string, error) {
	t, err := a.tokens.GetToken(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("authtoken: get token: %w", err)
	}
	if time.Now().Add(expirySkew).Before(t.ExpiresAt) {
		return t.AccessToken, nil
	}
	return a.refresh(ctx, accountID, t)
}

func (a *Accessor) refresh(ctx context.Context, accountID string, stale *models.OAuthToken) (string, error) {
	v, err, _ := a.group.Do(accountID, func() (any, error) {
		src := a.oauth.TokenSource(ctx, &oauth2.Token{
			AccessToken:  stale.AccessToken,
			RefreshToken: stale.RefreshToken,
			Expiry:       stale.ExpiresAt,
		})
		fresh, err := src.Token()
		if err != nil {
			return "", fmt.Errorf("authtoken: refresh: %w", err)
		}
		refreshToken := fresh.RefreshToken
		if refreshToken == "" {
			refreshToken = stale.RefreshToken // Google does not always rotate it
		}
		updated := &models.OAuthToken{
			AccountID:    accountID,
			AccessToken:  fresh.AccessToken,
			RefreshToken: refreshToken,
			Scope:        stale.Scope,
			ExpiresAt:    fresh.Expiry,
		}
		if err := a.tokens.UpsertToken(ctx, updated); err != nil {
			return "", fmt.Errorf("authtoken: persist refreshed token: %w", err)
		}
		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
