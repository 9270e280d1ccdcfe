package http

import (
	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/demo"
	"github.com/mrlokans/biblioteca/internal/oauth2"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Version  string

	// UI paths. Pages are not served when TemplatesPath is empty.
	TemplatesPath string
	StaticPath    string

	// Authentication. A nil AuthMiddleware treats every request as the
	// default admin, like auth mode "none".
	AuthConfig     config.Auth
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthMiddleware *auth.Middleware
	CSRFSecret     []byte
	SecureCookies  bool
	LoginAuditor   auth.LoginAuditor

	// JWT and OAuth2 token endpoints, mounted when TokenIssuer is set
	TokenIssuer   *auth.TokenIssuer
	OAuthClients  auth.ClientStore
	TokenThrottle *Throttle

	// Google sign-in (optional)
	GoogleProvider    oauth2.Provider
	GoogleRedirectURL string

	CORS   config.CORS
	Paging Paging

	// Catalog
	Books       BookStore
	Authors     AuthorStore
	AuthorBooks AuthorBooks
	Categories  CategoryStore
	Copies      CopyCounter

	// Circulation
	Loans       LoanStore
	Circulation Circulation
	Reports     ReportSource

	// Metadata enrichment and covers (optional)
	Lookup   MetadataLookup
	Enricher BookEnricher
	Covers   CoverSource

	// Audit
	Auditor  CatalogAuditor
	AuditLog AuditLog

	// Task queue client (optional)
	Tasks       TaskQueue
	TasksStatus func() string

	DemoMiddleware *demo.Middleware
}
