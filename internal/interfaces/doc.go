// Package interfaces documents the core abstractions used throughout the application.
//
// Consumers declare the narrow interface they need next to the code that uses
// it; the concrete repositories and services are checked against all of them
// in checks.go.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - BookStore, AuthorStore, CategoryStore: catalog CRUD (internal/http/stores.go)
//   - CopyCounter: total copies through the stock ledger (internal/http/stores.go)
//   - LoanStore, ReportSource: loan reads and aggregates (internal/http/stores.go)
//   - RefreshStore, ClientStore, UserLookup: token storage (internal/auth)
//   - BookUpdater: metadata writes (internal/metadata/enricher.go)
//
// ## Service Interfaces
//
//   - Circulation: check-out, return and cancel (internal/http/stores.go)
//   - OverdueMarker: overdue sweep (internal/tasks, internal/scheduler)
//   - AuditRecorder, CatalogAuditor, LoginAuditor, EnrichAuditor: audit trail
//
// ## External Service Interfaces
//
//   - MetadataProvider: book metadata by ISBN (internal/metadata/enricher.go)
//   - CoverSource: cached cover images (internal/http/stores.go)
//   - CoverInvalidator: cover eviction after enrichment (internal/metadata)
//   - oauth2.Provider: social sign-in (internal/oauth2/provider.go)
//
// # Adding a New Metadata Provider
//
// To add a second source of book metadata (e.g., Open Library):
//
//  1. Implement MetadataProvider in internal/metadata/
//
//     type OpenLibraryClient struct {
//         httpClient *http.Client
//     }
//
//     func (c *OpenLibraryClient) Lookup(ctx context.Context, identifier string) (*BookMetadata, error)
//
//     var _ MetadataProvider = (*OpenLibraryClient)(nil)
//
//  2. Pass it to metadata.NewEnricher in entrypoint.go
//
// # Adding a New Background Task
//
//  1. Define the task and its processor in internal/tasks/
//
//     type ReindexTask struct{}
//
//     func (t ReindexTask) Config() backlite.QueueConfig
//
//  2. Add it to tasks.Types() and tasks.NewTask so /api/tasks/:type/run can
//     enqueue it
//
//  3. Register the queue in entrypoint.go
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
