// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── query.go         # ListOptions, ordering whitelist, pagination
//	├── books/           # Catalog entries
//	├── authors/         # Authors
//	├── categories/      # Categories
//	├── loans/           # Loan records (state changes go through circulation)
//	├── users/           # User accounts
//	├── clients/         # OAuth applications and refresh tokens
//	├── audit/           # Audit trail
//	└── reports/         # Read-only aggregates (goqu + sqlx)
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./biblioteca.db")
//
//	booksRepo := books.NewRepository(db.DB)
//	page, err := booksRepo.List(database.ListOptions{Search: "borges"})
//
// Repositories return database.ErrNotFound when a lookup matches nothing.
// Stock is never written by the books repository; inventory.Ledger owns it.
package database
