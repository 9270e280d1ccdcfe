package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/metadata"
)

// LookupCommand prints the Google Books metadata for one ISBN.
type LookupCommand struct {
	ISBN    string
	BaseURL string
	Country string
	Timeout time.Duration
	JSON    bool

	Out io.Writer
}

func NewLookupCommand() *LookupCommand {
	return &LookupCommand{Out: os.Stdout}
}

func (cmd *LookupCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)

	fs.StringVar(&cmd.ISBN, "isbn", "", "ISBN-10 or ISBN-13 to look up (required)")
	fs.StringVar(&cmd.BaseURL, "url", config.DefaultGoogleBooksURL, "Google Books volumes endpoint")
	fs.StringVar(&cmd.Country, "country", "US", "Country passed to Google Books")
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Second, "Per-request timeout")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the result as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s lookup -isbn <isbn> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Look up a book in Google Books without touching the catalog.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.ISBN == "" {
		return fmt.Errorf("required flag -isbn not provided")
	}
	return nil
}

func (cmd *LookupCommand) Run() error {
	out := cmd.Out
	if out == nil {
		out = os.Stdout
	}

	client := metadata.NewGoogleBooksClient(
		metadata.WithBaseURL(cmd.BaseURL),
		metadata.WithCountry(cmd.Country),
		metadata.WithTimeout(cmd.Timeout),
	)

	md, err := client.Lookup(context.Background(), cmd.ISBN)
	if errors.Is(err, metadata.ErrNotFound) {
		fmt.Fprintf(out, "No match for %s\n", cmd.ISBN)
		return nil
	}
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	}

	fmt.Fprintf(out, "Title:     %s\n", md.Title)
	if md.Subtitle != "" {
		fmt.Fprintf(out, "Subtitle:  %s\n", md.Subtitle)
	}
	fmt.Fprintf(out, "Authors:   %s\n", strings.Join(md.Authors, ", "))
	fmt.Fprintf(out, "Publisher: %s\n", md.Publisher)
	fmt.Fprintf(out, "Published: %s\n", md.PublishedDate)
	fmt.Fprintf(out, "Pages:     %d\n", md.PageCount)
	fmt.Fprintf(out, "Language:  %s\n", md.Language)
	fmt.Fprintf(out, "ISBN-10:   %s\n", md.ISBN10)
	fmt.Fprintf(out, "ISBN-13:   %s\n", md.ISBN13)
	if md.CoverURL != "" {
		fmt.Fprintf(out, "Cover:     %s\n", md.CoverURL)
	}
	return nil
}
