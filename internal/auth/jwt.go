package auth

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/entities"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrMissingSigningKey = errors.New("jwt signing secret is not configured")
	ErrWrongTokenType    = errors.New("wrong token type")
	ErrTokenRevoked      = errors.New("token has been revoked")
	ErrClientMismatch    = errors.New("token was issued to another client")
)

// DefaultScopes are granted when a client does not ask for specific scopes.
var DefaultScopes = []string{entities.ScopeRead, entities.ScopeWrite}

type Claims struct {
	Role      string `json:"role,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(id), nil
}

func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}

// RefreshStore persists refresh token IDs so they can be rotated and revoked.
type RefreshStore interface {
	SaveRefreshToken(token *entities.RefreshToken) error
	GetRefreshToken(jti string) (*entities.RefreshToken, error)
	RevokeRefreshToken(jti string, at time.Time) (bool, error)
}

// UserLookup resolves the subject of a refresh token to a current user.
type UserLookup interface {
	GetUserByID(id uint) (*entities.User, error)
}

type TokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int    `json:"expires_in"`
	Scope     string `json:"scope"`
}

// TokenIssuer signs HS256 access and refresh tokens. Refresh tokens are
// single use: Refresh revokes the presented one before issuing a new pair.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	users      UserLookup
	now        func() time.Time
}

func NewTokenIssuer(cfg config.JWT, store RefreshStore, users UserLookup) (*TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	access, refresh := cfg.AccessLifetime, cfg.RefreshLifetime
	if access <= 0 {
		access = time.Hour
	}
	if refresh <= 0 {
		refresh = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  access,
		refreshTTL: refresh,
		store:      store,
		users:      users,
		now:        time.Now,
	}, nil
}

// Issue signs a token pair for user. A nil app means a first-party token
// from the /api/token/ endpoint.
func (ti *TokenIssuer) Issue(user *entities.User, scopes []string, app *entities.OAuthApplication) (*TokenPair, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	scope := strings.Join(scopes, " ")
	now := ti.now()

	var clientID string
	var appID *uint
	if app != nil {
		clientID = app.ClientID
		id := app.ID
		appID = &id
	}

	access, err := ti.sign(Claims{
		Role:             string(user.Role),
		Scope:            scope,
		ClientID:         clientID,
		TokenType:        TokenTypeAccess,
		RegisteredClaims: ti.registered(user.ID, now, ti.accessTTL),
	})
	if err != nil {
		return nil, err
	}

	refreshClaims := Claims{
		Scope:            scope,
		ClientID:         clientID,
		TokenType:        TokenTypeRefresh,
		RegisteredClaims: ti.registered(user.ID, now, ti.refreshTTL),
	}
	refresh, err := ti.sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	err = ti.store.SaveRefreshToken(&entities.RefreshToken{
		JTI:           refreshClaims.ID,
		UserID:        user.ID,
		ApplicationID: appID,
		Scopes:        scope,
		ExpiresAt:     refreshClaims.ExpiresAt.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		Access:    access,
		Refresh:   refresh,
		ExpiresIn: int(ti.accessTTL.Seconds()),
		Scope:     scope,
	}, nil
}

func (ti *TokenIssuer) registered(userID uint, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    ti.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (ti *TokenIssuer) sign(c Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return t.SignedString(ti.secret)
}

func (ti *TokenIssuer) parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}

	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims, ok := t.Claims.(*Claims); ok && t.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
}

// ParseAccess validates an access token presented as a bearer credential.
func (ti *TokenIssuer) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := ti.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// Verify accepts either token type. Refresh tokens must also still be live
// in the store.
func (ti *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	claims, err := ti.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == TokenTypeRefresh {
		if err := ti.checkLive(claims.ID); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (ti *TokenIssuer) checkLive(jti string) error {
	stored, err := ti.store.GetRefreshToken(jti)
	if err != nil {
		return fmt.Errorf("%w: unknown refresh token", ErrInvalidToken)
	}
	if !stored.Usable(ti.now()) {
		return ErrTokenRevoked
	}
	return nil
}

// Refresh exchanges a refresh token for a new pair. clientID must match the
// client the token was issued to; it is empty for first-party tokens.
func (ti *TokenIssuer) Refresh(tokenStr, clientID string, app *entities.OAuthApplication) (*TokenPair, error) {
	claims, err := ti.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	if claims.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	if err := ti.checkLive(claims.ID); err != nil {
		return nil, err
	}

	revoked, err := ti.store.RevokeRefreshToken(claims.ID, ti.now())
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		// lost a race with another refresh of the same token
		return nil, ErrTokenRevoked
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := ti.users.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return ti.Issue(user, claims.Scopes(), app)
}

// Revoke invalidates a refresh token. Unknown or already revoked tokens are
// not an error.
func (ti *TokenIssuer) Revoke(tokenStr string) error {
	claims, err := ti.parse(tokenStr)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeRefresh {
		return ErrWrongTokenType
	}
	_, err = ti.store.RevokeRefreshToken(claims.ID, ti.now())
	return err
}
