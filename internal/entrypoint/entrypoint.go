package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	auditsvc "github.com/mrlokans/biblioteca/internal/audit"
	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/covers"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/audit"
	"github.com/mrlokans/biblioteca/internal/database/authors"
	"github.com/mrlokans/biblioteca/internal/database/books"
	"github.com/mrlokans/biblioteca/internal/database/categories"
	"github.com/mrlokans/biblioteca/internal/database/clients"
	"github.com/mrlokans/biblioteca/internal/database/loans"
	"github.com/mrlokans/biblioteca/internal/database/reports"
	"github.com/mrlokans/biblioteca/internal/database/users"
	"github.com/mrlokans/biblioteca/internal/demo"
	http_controllers "github.com/mrlokans/biblioteca/internal/http"
	"github.com/mrlokans/biblioteca/internal/inventory"
	"github.com/mrlokans/biblioteca/internal/metadata"
	"github.com/mrlokans/biblioteca/internal/oauth2"
	"github.com/mrlokans/biblioteca/internal/oauth2/providers"
	"github.com/mrlokans/biblioteca/internal/scheduler"
	"github.com/mrlokans/biblioteca/internal/tasks"
	"github.com/mrlokans/biblioteca/internal/telemetry"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// SIGKILL cannot be caught
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests before background work is drained
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Biblioteca v%s", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otel, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := otel.Shutdown(); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}()

	var demoMiddleware *demo.Middleware
	if cfg.Demo.Enabled {
		log.Printf("Demo mode enabled - write operations will be blocked")
		demoMiddleware = demo.NewMiddleware(true)
		if cfg.Demo.DBPath != "" {
			cfg.Database.Path = cfg.Demo.DBPath
		}
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	bookRepo := books.NewRepository(db.DB)
	userRepo := users.NewRepository(db.DB)
	clientRepo := clients.NewRepository(db.DB)
	auditRepo := audit.NewRepository(db.DB)
	auditor := auditsvc.NewService(auditRepo)

	ledger := inventory.NewLedger()
	circ := circulation.NewService(db.DB, ledger,
		circulation.WithLoanDays(cfg.Loans.DefaultDays),
		circulation.WithAuditRecorder(auditor),
		circulation.WithTracerProvider(otel.TracerProvider),
	)

	reportRepo, err := reports.FromGorm(db.DB)
	if err != nil {
		log.Fatalf("Failed to initialize reports: %v", err)
	}

	if cfg.Demo.Enabled {
		seeder := demo.NewSeeder(db.DB, circ)
		res, err := seeder.Seed(ctx, seedOptions(cfg))
		if err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		log.Printf("Demo data ready: %d books, %d loans", res.Books, res.Loans)
	}

	// Google Books lookups and cover cache
	lookup := metadata.NewGoogleBooksClient(
		metadata.WithBaseURL(cfg.GoogleBooks.BaseURL),
		metadata.WithTimeout(cfg.GoogleBooks.Timeout),
		metadata.WithCountry(cfg.GoogleBooks.Country),
		metadata.WithTracerProvider(otel.TracerProvider),
	)
	enricher := metadata.NewEnricher(lookup, bookRepo)
	enricher.SetRateLimit(cfg.Loans.EnrichRatePerSec)

	coverCache, err := covers.NewCache(cfg.Covers.CacheDir)
	if err != nil {
		log.Printf("WARNING: Failed to initialize cover cache: %v", err)
	} else {
		enricher.SetCoverInvalidator(coverCache)
		log.Printf("Cover cache initialized at %s", coverCache.CacheDir())
	}

	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewEnrichBookQueue(enricher, auditor),
			tasks.NewEnrichAllBooksQueue(enricher),
			tasks.NewMarkOverdueLoansQueue(circ),
			tasks.NewCleanupAuditEventsQueue(auditor),
		)
		taskClient.Start(ctx)
	}

	// Authentication
	var authService *auth.Service
	var authMiddleware *auth.Middleware
	var sessionManager *auth.SessionManager
	var tokenIssuer *auth.TokenIssuer
	var googleProvider oauth2.Provider
	var csrfSecret []byte

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		authService = auth.NewService(db.DB, cfg.Auth)

		sqlDB, err := db.DB.DB()
		if err != nil {
			log.Fatalf("Failed to get SQL DB for sessions: %v", err)
		}
		sessionManager, err = auth.NewSessionManager(sqlDB, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}

		csrfSecret = sessionSecret(cfg)

		jwtCfg := cfg.JWT
		if jwtCfg.Secret == "" {
			jwtCfg.Secret = hex.EncodeToString(csrfSecret)
			log.Printf("JWT_SECRET not set, signing tokens with the session secret")
		}
		tokenIssuer, err = auth.NewTokenIssuer(jwtCfg, clientRepo, userRepo)
		if err != nil {
			log.Fatalf("Failed to initialize token issuer: %v", err)
		}

		authMiddleware = auth.NewMiddleware(authService, sessionManager, tokenIssuer, cfg.Auth)

		if cfg.Google.ClientID != "" {
			registry := oauth2.NewRegistry()
			registry.Register(providers.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret))
			googleProvider, err = registry.Get(providers.GoogleName)
			if err != nil {
				log.Fatalf("Failed to register Google sign-in: %v", err)
			}
			log.Printf("Google sign-in enabled (providers: %v)", registry.List())
		}

		if hasUsers, _ := authService.HasUsers(); !hasUsers {
			log.Printf("No users found. Visit /setup to create an administrator account.")
		}
	} else {
		log.Printf("Authentication mode: none (no authentication required)")
	}

	throttle := http_controllers.NewThrottle(cfg.OAuth2.TokenRatePerMin, cfg.OAuth2.TokenRateBurst)
	go throttle.Run(ctx)

	// Periodic jobs
	var jobs []scheduler.Job
	if cfg.Loans.OverdueSweep {
		jobs = append(jobs, scheduler.OverdueSweepJob(cfg.Loans.OverdueSchedule, circ, time.Now))
	}
	jobs = append(jobs, scheduler.AuditCleanupJob(scheduler.DefaultAuditSchedule, auditor, cfg.Audit.RetentionDays))
	if cfg.Demo.Enabled {
		seeder := demo.NewSeeder(db.DB, circ)
		jobs = append(jobs, scheduler.DemoResetJob(cfg.Demo.ResetInterval, func(ctx context.Context) error {
			_, err := seeder.Reset(ctx, seedOptions(cfg))
			return err
		}))
	}
	sched, err := scheduler.New(jobs...)
	if err != nil {
		log.Fatalf("Failed to configure scheduler: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	routerCfg := http_controllers.RouterConfig{
		Database:          db,
		Version:           version,
		TemplatesPath:     cfg.UI.TemplatesPath,
		StaticPath:        cfg.UI.StaticPath,
		AuthConfig:        cfg.Auth,
		AuthService:       authService,
		SessionManager:    sessionManager,
		AuthMiddleware:    authMiddleware,
		CSRFSecret:        csrfSecret,
		SecureCookies:     cfg.Auth.SecureCookies,
		LoginAuditor:      auditor,
		TokenIssuer:       tokenIssuer,
		OAuthClients:      clientRepo,
		TokenThrottle:     throttle,
		GoogleProvider:    googleProvider,
		GoogleRedirectURL: cfg.Google.RedirectURL,
		CORS:              cfg.CORS,
		Paging:            http_controllers.Paging{PageSize: cfg.Pagination.PageSize, MaxPageSize: cfg.Pagination.MaxPageSize},
		Books:             bookRepo,
		Authors:           authors.NewRepository(db.DB),
		AuthorBooks:       bookRepo,
		Categories:        categories.NewRepository(db.DB),
		Copies:            inventory.NewStore(db.DB, ledger),
		Loans:             loans.NewRepository(db.DB),
		Circulation:       circ,
		Reports:           reportRepo,
		Lookup:            lookup,
		Enricher:          enricher,
		Auditor:           auditor,
		AuditLog:          auditRepo,
		DemoMiddleware:    demoMiddleware,
	}
	if coverCache != nil {
		routerCfg.Covers = coverCache
	}
	if taskClient != nil {
		routerCfg.Tasks = taskClient
		routerCfg.TasksStatus = func() string { return "running" }
	}

	router, stopRouter := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		stopRouter()
		sched.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		cancel()
		auditor.Wait()
	}

	Serve(router, cfg, onShutdown)
}

// sessionSecret decodes AUTH_SESSION_SECRET, or generates one for this run.
func sessionSecret(cfg *config.Config) []byte {
	if cfg.Auth.SessionSecret != "" {
		secret, err := hex.DecodeString(cfg.Auth.SessionSecret)
		if err != nil {
			// Not hex, use as raw bytes
			secret = []byte(cfg.Auth.SessionSecret)
		}
		return secret
	}

	generated, err := auth.GenerateSessionSecret()
	if err != nil {
		log.Fatalf("Failed to generate session secret: %v", err)
	}
	secret, _ := hex.DecodeString(generated)
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return secret
}

func seedOptions(cfg *config.Config) demo.SeedOptions {
	return demo.SeedOptions{
		BcryptCost: cfg.Auth.BcryptCost,
		ClientID:   cfg.OAuth2.DefaultClientID,
		ClientName: cfg.OAuth2.DefaultClientName,
	}
}
