package oauth2

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderConfig contains the configuration needed for OAuth2 authorization
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// TokenResponse contains tokens returned from the OAuth2 provider
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds until expiry
	Scope        string
	IDToken      string
}

// ExpiresAt calculates the absolute expiry time from ExpiresIn
func (t *TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &exp
}

// Profile identifies the account that completed a social login.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Name          string
}

// Provider defines the interface for social login providers
type Provider interface {
	// Name returns the provider identifier, e.g. "google"
	Name() string

	Config() ProviderConfig

	// BuildAuthURL returns the authorization URL together with the PKCE
	// code verifier and the state the callback must echo.
	BuildAuthURL(redirectURL string) (authURL, codeVerifier, state string, err error)

	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURL string) (*TokenResponse, error)

	// GetProfile fetches the signed-in account using the access token
	GetProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry manages registered OAuth2 providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
