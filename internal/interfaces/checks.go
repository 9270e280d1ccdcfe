package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	auditsvc "github.com/mrlokans/biblioteca/internal/audit"
	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/circulation"
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
	"github.com/mrlokans/biblioteca/internal/http"
	"github.com/mrlokans/biblioteca/internal/inventory"
	"github.com/mrlokans/biblioteca/internal/metadata"
	"github.com/mrlokans/biblioteca/internal/oauth2"
	"github.com/mrlokans/biblioteca/internal/oauth2/providers"
	"github.com/mrlokans/biblioteca/internal/scheduler"
	"github.com/mrlokans/biblioteca/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ http.Pinger = (*database.Database)(nil)

var _ http.BookStore = (*books.Repository)(nil)
var _ http.AuthorBooks = (*books.Repository)(nil)
var _ http.AuthorStore = (*authors.Repository)(nil)
var _ http.CategoryStore = (*categories.Repository)(nil)
var _ http.LoanStore = (*loans.Repository)(nil)
var _ http.ReportSource = (*reports.Repository)(nil)
var _ http.AuditLog = (*audit.Repository)(nil)

var _ http.CopyCounter = (*inventory.Store)(nil)

// Token storage
var _ auth.RefreshStore = (*clients.Repository)(nil)
var _ auth.ClientStore = (*clients.Repository)(nil)
var _ auth.UserLookup = (*users.Repository)(nil)

// =============================================================================
// Services
// =============================================================================

var _ http.Circulation = (*circulation.Service)(nil)
var _ tasks.OverdueMarker = (*circulation.Service)(nil)
var _ scheduler.OverdueMarker = (*circulation.Service)(nil)

// Audit trail
var _ circulation.AuditRecorder = (*auditsvc.Service)(nil)
var _ http.CatalogAuditor = (*auditsvc.Service)(nil)
var _ auth.LoginAuditor = (*auditsvc.Service)(nil)
var _ tasks.EnrichAuditor = (*auditsvc.Service)(nil)
var _ tasks.AuditEventCleaner = (*auditsvc.Service)(nil)
var _ scheduler.AuditCleaner = (*auditsvc.Service)(nil)

// =============================================================================
// External Services
// =============================================================================

var _ metadata.MetadataProvider = (*metadata.GoogleBooksClient)(nil)
var _ http.MetadataLookup = (*metadata.GoogleBooksClient)(nil)
var _ metadata.BookUpdater = (*books.Repository)(nil)

var _ http.BookEnricher = (*metadata.Enricher)(nil)
var _ tasks.BookEnricher = (*metadata.Enricher)(nil)
var _ tasks.BulkEnricher = (*metadata.Enricher)(nil)

var _ http.CoverSource = (*covers.Cache)(nil)
var _ metadata.CoverInvalidator = (*covers.Cache)(nil)

var _ oauth2.Provider = (*providers.GoogleProvider)(nil)

// =============================================================================
// Background work
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
