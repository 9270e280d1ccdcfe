package config

const (
	// DefaultDatabasePath is the default path for the application database
	DefaultDatabasePath = "./biblioteca.db"

	// DefaultGoogleBooksURL is the Google Books volumes endpoint
	DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"

	// DefaultOAuthClientID identifies the OAuth application created by the seeder
	DefaultOAuthClientID = "biblioteca-cli"
)
