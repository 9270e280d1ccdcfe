package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"
	DefaultTimeout        = 10 * time.Second
	DefaultCountry        = "US"
)

var (
	// ErrNotFound means neither the strict nor the fallback query matched.
	// It is an expected outcome, not a failure.
	ErrNotFound = errors.New("no match")

	// ErrLookupFailed covers timeouts, transport errors, non-2xx responses
	// and undecodable bodies. Callers may retry at a higher level.
	ErrLookupFailed = errors.New("metadata lookup failed")

	// ErrTimeout accompanies ErrLookupFailed when the request ran out of time.
	ErrTimeout = errors.New("metadata lookup timed out")

	ErrEmptyIdentifier = errors.New("identifier is empty")
)

// BookMetadata is a parsed Google Books volume. Absent fields are left at
// their zero value; list fields are never nil.
type BookMetadata struct {
	Title         string   `json:"titulo"`
	Subtitle      string   `json:"subtitulo"`
	Authors       []string `json:"autores"`
	Publisher     string   `json:"editorial"`
	PublishedDate string   `json:"fecha_publicacion"`
	Description   string   `json:"descripcion"`
	PageCount     int      `json:"paginas"`
	Categories    []string `json:"categorias"`
	CoverURL      string   `json:"imagen_portada"`
	Language      string   `json:"idioma"`
	ISBN10        string   `json:"isbn_10"`
	ISBN13        string   `json:"isbn_13"`
}

// Logger receives the not-found (Info) and failure (Error) reports.
type Logger interface {
	Info(message string, params ...any)
	Error(message string, params ...any)
}

type stdLogger struct{}

func (l *stdLogger) Info(message string, params ...any) {
	log.Printf("[METADATA] "+message, params...)
}

func (l *stdLogger) Error(message string, params ...any) {
	log.Printf("[METADATA ERROR] "+message, params...)
}

// GoogleBooksClient looks up volumes by ISBN. It is configured once and
// holds no state between calls, so one instance serves concurrent callers.
type GoogleBooksClient struct {
	httpClient *http.Client
	baseURL    string
	country    string
	timeout    time.Duration
	logger     Logger
	tracer     trace.Tracer
}

type ClientOption func(*GoogleBooksClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *GoogleBooksClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *GoogleBooksClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient substitutes the transport, typically in tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *GoogleBooksClient) { c.httpClient = hc }
}

func WithCountry(country string) ClientOption {
	return func(c *GoogleBooksClient) { c.country = country }
}

func WithLogger(l Logger) ClientOption {
	return func(c *GoogleBooksClient) { c.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *GoogleBooksClient) { c.tracer = tp.Tracer("biblioteca/metadata") }
}

func NewGoogleBooksClient(opts ...ClientOption) *GoogleBooksClient {
	c := &GoogleBooksClient{
		httpClient: &http.Client{},
		baseURL:    DefaultGoogleBooksURL,
		country:    DefaultCountry,
		timeout:    DefaultTimeout,
		logger:     &stdLogger{},
		tracer:     otel.Tracer("biblioteca/metadata"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeIdentifier strips whitespace and hyphens. It does not validate
// the ISBN checksum.
func NormalizeIdentifier(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// Lookup runs the strict isbn: query and, only when it matches nothing, a
// free-text query for the bare identifier. Each stage gets one attempt.
func (c *GoogleBooksClient) Lookup(ctx context.Context, identifier string) (*BookMetadata, error) {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return nil, ErrEmptyIdentifier
	}

	stages := []struct {
		name  string
		query string
	}{
		{"strict", "isbn:" + id},
		{"fallback", id},
	}

	for _, stage := range stages {
		vol, err := c.query(ctx, stage.name, stage.query)
		if err != nil {
			c.logger.Error("Google Books %s query for %s failed: %v", stage.name, id, err)
			return nil, err
		}
		if vol != nil {
			return parseVolume(vol), nil
		}
	}

	c.logger.Info("ISBN %s not found in Google Books", id)
	return nil, ErrNotFound
}

// query returns the first item, or nil when the search matched nothing.
func (c *GoogleBooksClient) query(ctx context.Context, stage, q string) (*volume, error) {
	ctx, span := c.tracer.Start(ctx, "metadata.googlebooks.query",
		trace.WithAttributes(
			attribute.String("query.stage", stage),
			attribute.String("query.q", q),
		),
	)
	defer span.End()

	vol, total, err := c.fetch(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("result.total_items", total))
	return vol, nil
}

func (c *GoogleBooksClient) fetch(ctx context.Context, q string) (*volume, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{"q": {q}}
	if c.country != "" {
		params.Set("country", c.country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create request: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, 0, fmt.Errorf("%w: %w", ErrLookupFailed, ErrTimeout)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body volumesResponse
	if err := jsoniter.ConfigFastest.NewDecoder(resp.Body).Decode(&body); err != nil {
		if isTimeout(ctx, err) {
			return nil, 0, fmt.Errorf("%w: %w", ErrLookupFailed, ErrTimeout)
		}
		return nil, 0, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}

	if body.TotalItems < 1 || len(body.Items) == 0 {
		return nil, body.TotalItems, nil
	}
	return &body.Items[0], body.TotalItems, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseVolume(v *volume) *BookMetadata {
	info := v.VolumeInfo
	md := &BookMetadata{
		Title:         info.Title,
		Subtitle:      info.Subtitle,
		Authors:       nonNil(info.Authors),
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		Description:   info.Description,
		PageCount:     info.PageCount,
		Categories:    nonNil(info.Categories),
		Language:      info.Language,
		ISBN10:        info.identifier("ISBN_10"),
		ISBN13:        info.identifier("ISBN_13"),
	}
	if info.ImageLinks != nil {
		md.CoverURL = info.ImageLinks.Thumbnail
	}
	return md
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Google Books API response types (internal)

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle"`
	Authors             []string             `json:"authors"`
	Publisher           string               `json:"publisher"`
	PublishedDate       string               `json:"publishedDate"`
	Description         string               `json:"description"`
	PageCount           int                  `json:"pageCount"`
	Categories          []string             `json:"categories"`
	ImageLinks          *imageLinks          `json:"imageLinks"`
	Language            string               `json:"language"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
}

type imageLinks struct {
	Thumbnail string `json:"thumbnail"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

func (v volumeInfo) identifier(kind string) string {
	for _, id := range v.IndustryIdentifiers {
		if id.Type == kind {
			return id.Identifier
		}
	}
	return ""
}
