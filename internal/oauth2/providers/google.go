package providers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrlokans/biblioteca/internal/oauth2"
)

const (
	GoogleName = "google"

	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var googleScopes = []string{"openid", "email", "profile"}

// GoogleProvider implements Google sign-in with the authorization-code flow
// and PKCE.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	userInfoURL  string
	httpClient   *http.Client
}

type GoogleOption func(*GoogleProvider)

// WithGoogleEndpoints overrides the Google endpoints, for tests.
func WithGoogleEndpoints(authURL, tokenURL, userInfoURL string) GoogleOption {
	return func(p *GoogleProvider) {
		p.authURL = authURL
		p.tokenURL = tokenURL
		p.userInfoURL = userInfoURL
	}
}

func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.httpClient = c
	}
}

func NewGoogleProvider(clientID, clientSecret string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      googleAuthURL,
		tokenURL:     googleTokenURL,
		userInfoURL:  googleUserInfoURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GoogleProvider) Name() string {
	return GoogleName
}

func (p *GoogleProvider) Config() oauth2.ProviderConfig {
	return oauth2.ProviderConfig{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		AuthURL:      p.authURL,
		TokenURL:     p.tokenURL,
		UserInfoURL:  p.userInfoURL,
		Scopes:       googleScopes,
	}
}

func (p *GoogleProvider) BuildAuthURL(redirectURL string) (authURL, codeVerifier, state string, err error) {
	codeVerifier, err = generateCodeVerifier()
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state, err = generateState()
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", p.clientID)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(googleScopes, " "))
	params.Set("code_challenge", generateCodeChallenge(codeVerifier))
	params.Set("code_challenge_method", "S256")
	params.Set("state", state)
	params.Set("prompt", "select_account")
	if redirectURL != "" {
		params.Set("redirect_uri", redirectURL)
	}

	return p.authURL + "?" + params.Encode(), codeVerifier, state, nil
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURL string) (*oauth2.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", p.clientID)
	data.Set("client_secret", p.clientSecret)
	data.Set("code_verifier", codeVerifier)
	if redirectURL != "" {
		data.Set("redirect_uri", redirectURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	if status != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token exchange failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token exchange failed with status %d", status)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
		IDToken      string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}

	return &oauth2.TokenResponse{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    tokenResp.ExpiresIn,
		Scope:        tokenResp.Scope,
		IDToken:      tokenResp.IDToken,
	}, nil
}

func (p *GoogleProvider) GetProfile(ctx context.Context, accessToken string) (*oauth2.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info (status %d)", status)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("user info has no subject")
	}

	return &oauth2.Profile{
		Subject:       info.Sub,
		Email:         strings.ToLower(info.Email),
		EmailVerified: info.EmailVerified,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Name:          info.Name,
	}, nil
}

func (p *GoogleProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// generateCodeVerifier creates a random code verifier for PKCE
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// generateCodeChallenge derives the S256 challenge from the verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func generateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// RegisterGoogle adds the Google provider to the registry when credentials
// are configured.
func RegisterGoogle(registry *oauth2.Registry, clientID, clientSecret string) bool {
	if clientID == "" || clientSecret == "" {
		return false
	}
	registry.Register(NewGoogleProvider(clientID, clientSecret))
	return true
}
