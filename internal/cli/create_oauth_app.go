package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/clients"
	"github.com/mrlokans/biblioteca/internal/database/users"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// CreateOAuthAppCommand registers a confidential OAuth application and
// prints its secret once.
type CreateOAuthAppCommand struct {
	DatabasePath string
	ClientID     string
	Name         string
	Scopes       string
	Owner        string
	BcryptCost   int

	Out io.Writer
}

func NewCreateOAuthAppCommand() *CreateOAuthAppCommand {
	return &CreateOAuthAppCommand{Out: os.Stdout}
}

func (cmd *CreateOAuthAppCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-oauth-app", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the database file")
	fs.StringVar(&cmd.ClientID, "client-id", "", "Client ID (required)")
	fs.StringVar(&cmd.Name, "name", "", "Display name (defaults to the client ID)")
	fs.StringVar(&cmd.Scopes, "scopes", entities.ScopeRead+" "+entities.ScopeWrite, "Space separated scopes the application may request")
	fs.StringVar(&cmd.Owner, "owner", "", "Username that owns the application")
	fs.IntVar(&cmd.BcryptCost, "bcrypt-cost", 12, "bcrypt cost for the secret hash")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-oauth-app -client-id <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Register an OAuth application for the password and refresh_token grants.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.ClientID == "" {
		return fmt.Errorf("required flag -client-id not provided")
	}
	return nil
}

func (cmd *CreateOAuthAppCommand) Run() error {
	out := cmd.Out
	if out == nil {
		out = os.Stdout
	}

	for _, s := range strings.Fields(cmd.Scopes) {
		if s != entities.ScopeRead && s != entities.ScopeWrite {
			return fmt.Errorf("unknown scope %q", s)
		}
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	repo := clients.NewRepository(db.DB)
	if _, err := repo.GetApplication(cmd.ClientID); err == nil {
		return fmt.Errorf("application %q already exists", cmd.ClientID)
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	app := &entities.OAuthApplication{
		ClientID: cmd.ClientID,
		Name:     cmd.Name,
		Scopes:   strings.Join(strings.Fields(cmd.Scopes), " "),
	}
	if app.Name == "" {
		app.Name = cmd.ClientID
	}
	if cmd.Owner != "" {
		owner, err := users.NewRepository(db.DB).GetUserByUsername(cmd.Owner)
		if err != nil {
			return fmt.Errorf("owner %q: %w", cmd.Owner, err)
		}
		app.OwnerID = &owner.ID
	}

	secret, err := auth.GenerateClientSecret()
	if err != nil {
		return err
	}
	if app.SecretHash, err = auth.HashPassword(secret, cmd.BcryptCost); err != nil {
		return err
	}
	if err := repo.CreateApplication(app); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created OAuth application %s (%s)\n", app.ClientID, app.Name)
	fmt.Fprintf(out, "  client_secret: %s\n", secret)
	fmt.Fprintf(out, "  scopes:        %s\n", app.Scopes)
	fmt.Fprintln(out, "The secret is shown only once.")
	return nil
}
