package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aoitools/s2prep/service"
	"golang.org/x/oauth2"
)

// Copernicus Dataspace identity service (Keycloak), public client
const (
	CopernicusTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	CopernicusClientID = "cdse-public"
)

// TokenManager provides a valid bearer token, refreshing it when needed
type TokenManager interface {
	Get(ctx context.Context) (string, error)
	// Reset discards the current token. The next Get authenticates again.
	Reset()
}

type oauthTokenManager struct {
	config   *oauth2.Config
	username string
	password string

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewTokenManager creates a TokenManager on the resource-owner-password grant
func NewTokenManager(tokenURL, clientID, username, password string) TokenManager {
	return &oauthTokenManager{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
		username: username,
		password: password,
	}
}

// NewCopernicusTokenManager creates a TokenManager for the Copernicus Dataspace
func NewCopernicusTokenManager(username, password string) TokenManager {
	return NewTokenManager(CopernicusTokenURL, CopernicusClientID, username, password)
}

func (t *oauthTokenManager) Get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.source == nil {
		var token *oauth2.Token
		err := service.Retriable(ctx, func() error {
			var err error
			if token, err = t.config.PasswordCredentialsToken(ctx, t.username, t.password); err != nil {
				return classifyAuthError(err)
			}
			return nil
		}, time.Second, 3)
		if err != nil {
			return "", fmt.Errorf("authenticate: %w", err)
		}
		t.source = t.config.TokenSource(ctx, token)
	}
	token, err := t.source.Token()
	if err != nil {
		t.source = nil
		return "", fmt.Errorf("refresh token: %w", classifyAuthError(err))
	}
	return token.AccessToken, nil
}

func (t *oauthTokenManager) Reset() {
	t.mu.Lock()
	t.source = nil
	t.mu.Unlock()
}

// classifyAuthError marks bad credentials as fatal, the rest as temporary
func classifyAuthError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
			return service.MakeFatal(err)
		}
	}
	return service.MakeTemporary(err)
}

type tokenTransport struct {
	base      http.RoundTripper
	tokens    TokenManager
	blackList []string
}

// NewTokenTransport returns a RoundTripper adding "Authorization: Bearer" to
// every request whose url is not blacklisted
func NewTokenTransport(base http.RoundTripper, tokens TokenManager, blackList ...string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &tokenTransport{base: base, tokens: tokens, blackList: blackList}
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, blackListItem := range t.blackList {
		if strings.EqualFold(req.URL.String(), blackListItem) {
			return t.base.RoundTrip(req)
		}
	}
	token, err := t.tokens.Get(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req)
}
