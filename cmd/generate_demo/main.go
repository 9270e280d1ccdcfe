// Command generate_demo creates a fresh demo database with the sample library.
// Usage: go run cmd/generate_demo/main.go [-db path/to/demo.db]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/demo"
	"github.com/mrlokans/biblioteca/internal/inventory"
)

const defaultDemoDatabasePath = "./demo/demo.db"

func main() {
	dbPath := flag.String("db", defaultDemoDatabasePath, "path to the demo database file")
	clientSecret := flag.String("client-secret", "", "fixed secret for the demo OAuth application (generated when empty)")
	flag.Parse()

	log.Printf("Generating demo database at %s...", *dbPath)

	// Delete existing demo database to start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing demo database: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("Failed to create demo directory: %v", err)
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	seeder := demo.NewSeeder(db.DB, circulation.NewService(db.DB, inventory.NewLedger()))
	res, err := seeder.Seed(context.Background(), demo.SeedOptions{
		BcryptCost:   10,
		ClientID:     config.DefaultOAuthClientID,
		ClientName:   "Biblioteca Demo",
		ClientSecret: *clientSecret,
	})
	if err != nil {
		log.Fatalf("Failed to seed demo data: %v", err)
	}

	log.Printf("Created %d users, %d authors, %d categories, %d books and %d loans",
		res.Users, res.Authors, res.Categories, res.Books, res.Loans)
	if res.ClientSecret != "" {
		log.Printf("OAuth application %s, client secret: %s", res.ClientID, res.ClientSecret)
	}
	log.Println("Demo database generated successfully!")
}
