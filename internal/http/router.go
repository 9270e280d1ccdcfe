package http

import (
	"html/template"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int {
		return a + b
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"dateTime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

// NewRouter creates and configures the HTTP router with all endpoints. The
// returned stop function releases background resources of the auth pages.
func NewRouter(cfg RouterConfig) (*gin.Engine, func()) {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(auth.SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))

	authMiddleware := cfg.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil, nil, nil, config.Auth{Mode: config.AuthModeNone})
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, authMiddleware))
	}
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}
	router.Use(authMiddleware.Handler())
	router.Use(AuthContextMiddleware(cfg.AuthConfig.Mode))

	if cfg.DemoMiddleware != nil && cfg.DemoMiddleware.IsEnabled() {
		router.Use(cfg.DemoMiddleware.InjectContext())
		router.Use(cfg.DemoMiddleware.Handler())
	}

	stop := func() {}

	if cfg.TemplatesPath != "" {
		pages := filepath.Join(cfg.TemplatesPath, "*.html")
		tmpl := template.Must(template.New("").Funcs(templateFuncs).ParseGlob(pages))
		router.SetHTMLTemplate(tmpl)
	}
	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	requireAuth := authMiddleware.RequireAuth()
	requireStaff := authMiddleware.RequireStaff()
	requireAdmin := authMiddleware.RequireRole(entities.UserRoleAdmin)

	// Sign-in pages, API tokens and OAuth2
	if cfg.AuthService != nil && cfg.AuthService.IsAuthEnabled() {
		authController, err := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.TemplatesPath, cfg.AuthConfig)
		if err == nil {
			if cfg.GoogleProvider != nil && cfg.SessionManager != nil {
				authController.EnableGoogleLogin()
				google := auth.NewGoogleLoginController(cfg.AuthService, cfg.SessionManager, cfg.GoogleProvider, cfg.GoogleRedirectURL)
				google.RegisterRoutes(router)
			}
			if cfg.LoginAuditor != nil {
				authController.SetAuditor(cfg.LoginAuditor)
			}
			authController.RegisterRoutes(router)
			stop = authController.Stop

			tokenController := auth.NewAPITokenController(cfg.AuthService)
			router.POST("/api/auth/token", requireAuth, tokenController.GenerateToken)
			router.DELETE("/api/auth/token", requireAuth, tokenController.RevokeToken)
		}
	}
	if cfg.TokenIssuer != nil && cfg.AuthService != nil {
		var pre []gin.HandlerFunc
		if cfg.TokenThrottle != nil {
			pre = append(pre, cfg.TokenThrottle.Handler())
		}
		tokens := auth.NewTokenController(cfg.AuthService, cfg.TokenIssuer, cfg.OAuthClients)
		if cfg.LoginAuditor != nil {
			tokens.SetAuditor(cfg.LoginAuditor)
		}
		tokens.RegisterRoutes(router, pre...)
	}

	// Health endpoints
	var health *HealthController
	if cfg.Database != nil {
		health = NewHealthController(cfg.Database, cfg.Version, cfg.TasksStatus)
	} else {
		health = NewHealthController(nil, cfg.Version, cfg.TasksStatus)
	}
	router.GET("/health", health.Status)
	router.GET("/ping", Ping)

	api := router.Group("/api")

	// Catalog
	books := NewBooksController(BooksConfig{
		Books:      cfg.Books,
		Authors:    cfg.Authors,
		Categories: cfg.Categories,
		Copies:     cfg.Copies,
		Lookup:     cfg.Lookup,
		Enricher:   cfg.Enricher,
		Tasks:      cfg.Tasks,
		Covers:     cfg.Covers,
		Auditor:    cfg.Auditor,
		Paging:     cfg.Paging,
	})
	api.GET("/libros/", books.List)
	api.POST("/libros/", requireStaff, books.Create)
	api.GET("/libros/disponibles/", books.Available)
	api.GET("/libros/buscar-isbn/", books.LookupISBN)
	api.POST("/libros/desde-isbn/", requireStaff, books.CreateFromISBN)
	api.GET("/libros/:id/", books.Get)
	api.PUT("/libros/:id/", requireStaff, books.Update)
	api.PATCH("/libros/:id/", requireStaff, books.Update)
	api.DELETE("/libros/:id/", requireStaff, books.Delete)
	api.POST("/libros/:id/enriquecer/", requireStaff, books.Enrich)
	api.GET("/libros/:id/portada/", books.Cover)

	authors := NewAuthorsController(cfg.Authors, cfg.AuthorBooks, cfg.Auditor, cfg.Paging)
	api.GET("/autores/", authors.List)
	api.POST("/autores/", requireStaff, authors.Create)
	api.GET("/autores/:id/", authors.Get)
	api.GET("/autores/:id/libros/", authors.Books)
	api.PUT("/autores/:id/", requireStaff, authors.Update)
	api.PATCH("/autores/:id/", requireStaff, authors.Update)
	api.DELETE("/autores/:id/", requireStaff, authors.Delete)

	categories := NewCategoriesController(cfg.Categories, cfg.Auditor, cfg.Paging)
	api.GET("/categorias/", categories.List)
	api.POST("/categorias/", requireStaff, categories.Create)
	api.GET("/categorias/:id/", categories.Get)
	api.PUT("/categorias/:id/", requireStaff, categories.Update)
	api.PATCH("/categorias/:id/", requireStaff, categories.Update)
	api.DELETE("/categorias/:id/", requireStaff, categories.Delete)

	// Circulation
	loans := NewLoansController(cfg.Loans, cfg.Circulation, cfg.Reports, cfg.Paging)
	loanRoutes := api.Group("/prestamos", requireAuth)
	loanRoutes.GET("/", loans.List)
	loanRoutes.POST("/", loans.Create)
	loanRoutes.GET("/vencidos/", requireStaff, loans.Overdue)
	loanRoutes.GET("/:id/", loans.Get)
	loanRoutes.POST("/:id/devolver/", loans.Return)
	loanRoutes.DELETE("/:id/", requireStaff, loans.Cancel)

	reports := NewReportsController(cfg.Reports)
	api.GET("/estadisticas/", requireStaff, reports.Summary)

	if cfg.AuditLog != nil {
		auditController := NewAuditController(cfg.AuditLog)
		api.GET("/auditoria/", requireStaff, auditController.ListEvents)
	}

	// Task management endpoints
	if cfg.Tasks != nil {
		tasksController := NewTasksController(cfg.Tasks)
		api.GET("/tasks/types", requireStaff, tasksController.ListTaskTypes)
		api.GET("/tasks/:id", requireStaff, tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", requireStaff, tasksController.RunTask)
	}

	// Demo mode status endpoint (always available)
	demoController := NewDemoController(cfg.DemoMiddleware)
	api.GET("/demo/status", demoController.GetStatus)

	// UI routes
	if cfg.TemplatesPath != "" {
		ui := NewUIController(cfg.Books, cfg.Reports, cfg.AuditLog)
		router.GET("/", ui.HomePage)
		router.GET("/admin/", requireAdmin, ui.AdminPage)
	}

	return router, stop
}
