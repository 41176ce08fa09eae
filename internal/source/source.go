package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/ingest"
	"github.com/wonny/rollup/pkg/httputil"
)

// ErrNotConfigured is returned by Pull when no URL is set
var ErrNotConfigured = errors.New("source url not configured")

// ErrNoTable is returned when an HTML page has no two-column table
var ErrNoTable = errors.New("no table with at least two columns")

// ErrUnchanged is returned by Pull when the server reports the document unchanged
var ErrUnchanged = errors.New("source unchanged since last pull")

// Fetcher downloads a URL; *httputil.Client satisfies it
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// forgetter drops conditional-request state; *httputil.Client satisfies it
type forgetter interface {
	Forget(url string)
}

// Config selects the remote document
type Config struct {
	URL      string
	Format   string // csv, html
	Selector string // CSS selector for html tables, default "table"
}

// Source pulls a remote CSV file or HTML table and runs it through the ingestor
// ⭐ SSOT: 외부 데이터 소스 호출은 여기서만
type Source struct {
	fetcher  Fetcher
	cfg      Config
	ingestor *ingest.Ingestor
	log      zerolog.Logger
}

// New creates a source
func New(fetcher Fetcher, cfg Config, ingestor *ingest.Ingestor, log zerolog.Logger) *Source {
	if cfg.Selector == "" {
		cfg.Selector = "table"
	}
	cfg.Format = strings.ToLower(cfg.Format)
	return &Source{
		fetcher:  fetcher,
		cfg:      cfg,
		ingestor: ingestor,
		log:      log.With().Str("component", "source").Logger(),
	}
}

// URL returns the configured location
func (s *Source) URL() string {
	return s.cfg.URL
}

// Invalidate makes the next Pull unconditional. Call it when a pulled
// document could not be applied, or a 304 would hide it for good.
func (s *Source) Invalidate() {
	if f, ok := s.fetcher.(forgetter); ok {
		f.Forget(s.cfg.URL)
	}
}

// Pull downloads and parses the source. Row problems land in the result;
// the error is for transport and document-level failures.
func (s *Source) Pull(ctx context.Context) (*contracts.IngestResult, error) {
	if s.cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	body, contentType, err := s.fetcher.Fetch(ctx, s.cfg.URL)
	if errors.Is(err, httputil.ErrNotModified) {
		s.log.Debug().Str("url", s.cfg.URL).Msg("source not modified")
		return nil, ErrUnchanged
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.cfg.URL, err)
	}

	var r io.Reader = bytes.NewReader(body)
	if s.isHTML(contentType) {
		text, err := ExtractTable(bytes.NewReader(body), s.cfg.Selector, s.ingestor.Config().Delimiter)
		if err != nil {
			s.Invalidate()
			return nil, fmt.Errorf("extract table: %w", err)
		}
		r = strings.NewReader(text)
	}

	result, err := s.ingestor.Parse(r)
	if err != nil {
		s.Invalidate()
		return nil, err
	}

	s.log.Info().
		Str("url", s.cfg.URL).
		Int("bytes", len(body)).
		Int("records", len(result.Records)).
		Int("errors", len(result.Errors)).
		Msg("source pulled")

	return result, nil
}

func (s *Source) isHTML(contentType string) bool {
	if s.cfg.Format == "html" {
		return true
	}
	return s.cfg.Format == "" && strings.HasPrefix(strings.ToLower(contentType), "text/html")
}

// ExtractTable renders the first matching table with two or more columns as
// delimited text (first two cells per row), header rows included.
func ExtractTable(r io.Reader, selector string, delim rune) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var rows [][]string
	doc.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows = tableRows(table)
		return len(rows) == 0
	})
	if len(rows) == 0 {
		return "", ErrNoTable
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return buf.String(), nil
}

// tableRows collects the first two cells of each row that has at least two
func tableRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		rows = append(rows, []string{
			strings.TrimSpace(cells.Eq(0).Text()),
			strings.TrimSpace(cells.Eq(1).Text()),
		})
	})
	return rows
}
