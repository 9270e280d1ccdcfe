package auth

import (
	"context"
	"database/sql"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// LoginMethod records how a browser session was opened.
type LoginMethod string

const (
	LoginMethodPassword LoginMethod = "password"
	LoginMethodGoogle   LoginMethod = "google"
	LoginMethodSetup    LoginMethod = "setup"
)

const (
	sessionKeyUserID   = "user_id"
	sessionKeyUsername = "username"
	sessionKeyRole     = "role"
	sessionKeyMethod   = "login_method"
	sessionKeyLoginAt  = "login_at"

	sessionKeyOAuthState    = "oauth_state"
	sessionKeyOAuthVerifier = "oauth_verifier"
	sessionKeyOAuthNext     = "oauth_next"
)

func init() {
	gob.Register(entities.UserRole(""))
	gob.Register(LoginMethod(""))
	gob.Register(time.Time{})
}

// SessionManager keeps browser sessions for the web pages in the same SQLite
// file as the library.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager creates the sessions table on first use. sqlDB is the
// handle underneath gorm.
func NewSessionManager(sqlDB *sql.DB, cfg config.Auth) (*SessionManager, error) {
	_, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, err
	}

	sm := scs.New()
	sm.Store = sqlite3store.New(sqlDB)
	sm.Lifetime = cfg.SessionLifetime
	sm.IdleTimeout = cfg.SessionLifetime / 2

	sm.Cookie.Name = "biblioteca_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	// Lax: the Google callback is a cross-site redirect and must carry the cookie.
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm}, nil
}

// CreateSession signs user in on this browser. The token is renewed first so
// a session id planted before login is worthless afterwards.
func (sm *SessionManager) CreateSession(r *http.Request, user *entities.User, method LoginMethod) error {
	ctx := r.Context()
	if err := sm.RenewToken(ctx); err != nil {
		return err
	}

	// scs round-trips integers as int
	sm.Put(ctx, sessionKeyUserID, int(user.ID))
	sm.Put(ctx, sessionKeyUsername, user.Username)
	sm.Put(ctx, sessionKeyRole, user.Role)
	sm.Put(ctx, sessionKeyMethod, method)
	sm.Put(ctx, sessionKeyLoginAt, time.Now())
	return nil
}

func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetUserID returns 0 for anonymous requests.
func (sm *SessionManager) GetUserID(r *http.Request) uint {
	return uint(sm.GetInt(r.Context(), sessionKeyUserID))
}

func (sm *SessionManager) GetUsername(r *http.Request) string {
	return sm.GetString(r.Context(), sessionKeyUsername)
}

func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	return sm.GetUserID(r) != 0
}

// SessionData is the signed-in user as the session remembers it. Role may be
// stale after an admin changes it; the middleware reloads the user.
type SessionData struct {
	UserID   uint
	Username string
	Role     entities.UserRole
	Method   LoginMethod
	LoginAt  time.Time
}

// GetSessionData returns nil for anonymous requests.
func (sm *SessionManager) GetSessionData(r *http.Request) *SessionData {
	userID := sm.GetUserID(r)
	if userID == 0 {
		return nil
	}

	ctx := r.Context()
	role, _ := sm.Get(ctx, sessionKeyRole).(entities.UserRole)
	method, _ := sm.Get(ctx, sessionKeyMethod).(LoginMethod)
	loginAt, _ := sm.Get(ctx, sessionKeyLoginAt).(time.Time)

	return &SessionData{
		UserID:   userID,
		Username: sm.GetUsername(r),
		Role:     role,
		Method:   method,
		LoginAt:  loginAt,
	}
}

// pendingOAuth is what the Google login keeps between redirect and callback.
type pendingOAuth struct {
	State    string
	Verifier string
	Next     string
}

func (sm *SessionManager) beginOAuth(ctx context.Context, p pendingOAuth) {
	sm.Put(ctx, sessionKeyOAuthState, p.State)
	sm.Put(ctx, sessionKeyOAuthVerifier, p.Verifier)
	sm.Put(ctx, sessionKeyOAuthNext, p.Next)
}

// takeOAuth returns the pending flow and forgets it, so a callback URL can
// only be used once.
func (sm *SessionManager) takeOAuth(ctx context.Context) pendingOAuth {
	return pendingOAuth{
		State:    sm.PopString(ctx, sessionKeyOAuthState),
		Verifier: sm.PopString(ctx, sessionKeyOAuthVerifier),
		Next:     sm.PopString(ctx, sessionKeyOAuthNext),
	}
}
