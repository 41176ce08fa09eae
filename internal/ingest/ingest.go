package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/wonny/rollup/internal/contracts"
	"github.com/wonny/rollup/internal/datekey"
)

// ErrNoValidRows signals input that parsed but produced no record
var ErrNoValidRows = errors.New("no valid data rows")

// ErrInvalidDelimiter is returned by Config.Validate
var ErrInvalidDelimiter = errors.New("invalid delimiter")

// DefaultUnitTokens are generic second-column header words
var DefaultUnitTokens = []string{
	"value", "amount", "units", "qty", "quantity", "count", "total", "kg", "litres", "liters",
}

// thousandsSeparators are stripped from the value column before parsing
var thousandsSeparators = strings.NewReplacer(",", "", "_", "", " ", "", "'", "", "\u00a0", "")

// Config controls delimiter and header detection
type Config struct {
	Delimiter    rune     // single field delimiter (default ',')
	ValueKeyword string   // domain word expected in the value header, e.g. "milk"
	UnitTokens   []string // generic header words accepted for the value column
}

// DefaultConfig returns comma-delimited input with generic unit tokens
func DefaultConfig() Config {
	return Config{
		Delimiter:  ',',
		UnitTokens: DefaultUnitTokens,
	}
}

// Validate checks the delimiter can be used by the CSV reader
func (c Config) Validate() error {
	d := c.Delimiter
	if d == 0 || d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError || !utf8.ValidRune(d) {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, d)
	}
	return nil
}

// Ingestor parses two-column date,value text into validated records
type Ingestor struct {
	cfg Config
	log zerolog.Logger
}

// New creates an ingestor; zero fields fall back to DefaultConfig
func New(cfg Config, log zerolog.Logger) *Ingestor {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if len(cfg.UnitTokens) == 0 {
		cfg.UnitTokens = DefaultUnitTokens
	}
	cfg.ValueKeyword = strings.ToLower(strings.TrimSpace(cfg.ValueKeyword))
	return &Ingestor{
		cfg: cfg,
		log: log.With().Str("component", "ingest").Logger(),
	}
}

// Config returns the effective configuration
func (in *Ingestor) Config() Config {
	return in.cfg
}

// Parse reads every row, collecting records and per-row errors in source order.
// A bad row never aborts the parse; the error return is for reader failures only.
// Use NonEmpty to turn a zero-record result into ErrNoValidRows.
func (in *Ingestor) Parse(r io.Reader) (*contracts.IngestResult, error) {
	if err := in.cfg.Validate(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = in.cfg.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	result := &contracts.IngestResult{
		Records: []contracts.DailyRecord{},
		Errors:  []contracts.RowError{},
	}
	first := true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				result.Errors = append(result.Errors, contracts.RowError{
					Row:     pe.StartLine,
					Message: pe.Err.Error(),
				})
				first = false
				continue
			}
			return nil, fmt.Errorf("read input: %w", err)
		}

		line, _ := cr.FieldPos(0)

		if isBlank(row) {
			continue
		}
		if len(row) < 2 {
			result.Discarded++
			continue
		}

		if first {
			first = false
			row[0] = strings.TrimPrefix(row[0], "\ufeff")
			if in.looksLikeHeader(row[0], row[1]) {
				result.HeaderSkipped = true
				continue
			}
		}

		rec, msg := parseRow(row[0], row[1])
		if msg != "" {
			result.Errors = append(result.Errors, contracts.RowError{Row: line, Message: msg})
			continue
		}
		result.Records = append(result.Records, rec)
	}

	in.log.Debug().
		Int("records", len(result.Records)).
		Int("errors", len(result.Errors)).
		Int("discarded", result.Discarded).
		Bool("header", result.HeaderSkipped).
		Msg("input parsed")

	return result, nil
}

// NonEmpty returns ErrNoValidRows when the result holds no record
func NonEmpty(result *contracts.IngestResult) error {
	if result.Empty() {
		n := 0
		if result != nil {
			n = len(result.Errors)
		}
		return fmt.Errorf("%w (%d rejected)", ErrNoValidRows, n)
	}
	return nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// looksLikeHeader matches a "date" token in the first cell and the value
// keyword or a unit token in the second
func (in *Ingestor) looksLikeHeader(c1, c2 string) bool {
	c1 = strings.ToLower(strings.TrimSpace(c1))
	c2 = strings.ToLower(strings.TrimSpace(c2))
	if !strings.Contains(c1, "date") {
		return false
	}
	if in.cfg.ValueKeyword != "" && strings.Contains(c2, in.cfg.ValueKeyword) {
		return true
	}
	for _, tok := range in.cfg.UnitTokens {
		if tok != "" && strings.Contains(c2, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

// parseRow returns the record or a non-empty rejection reason
func parseRow(rawDate, rawValue string) (contracts.DailyRecord, string) {
	date, err := datekey.Parse(rawDate)
	if err != nil {
		return contracts.DailyRecord{}, fmt.Sprintf("invalid date %q", strings.TrimSpace(rawDate))
	}

	v, msg := ParseValue(rawValue)
	if msg != "" {
		return contracts.DailyRecord{}, msg
	}
	return contracts.DailyRecord{Date: date, Value: v}, ""
}

// ParseValue strips thousands separators and parses a non-negative finite number.
// The second return is the rejection reason, empty on success.
func ParseValue(raw string) (float64, string) {
	s := thousandsSeparators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, "missing value"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Sprintf("invalid number %q", strings.TrimSpace(raw))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Sprintf("non-finite value %q", strings.TrimSpace(raw))
	}
	if v < 0 {
		return 0, fmt.Sprintf("negative value %s", FormatValue(v))
	}
	return v, ""
}

// FormatValue renders v with the shortest representation that parses back exactly
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// valueHeader names the value column so Parse recognises the exported header
func (in *Ingestor) valueHeader() string {
	if in.cfg.ValueKeyword != "" {
		return in.cfg.ValueKeyword
	}
	for _, tok := range in.cfg.UnitTokens {
		if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
			return tok
		}
	}
	return "value"
}

// Export writes a date header row followed by one canonical row per record
func (in *Ingestor) Export(w io.Writer, records iter.Seq[contracts.DailyRecord]) (int, error) {
	if err := in.cfg.Validate(); err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	cw.Comma = in.cfg.Delimiter

	if err := cw.Write([]string{"date", in.valueHeader()}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	for r := range records {
		if err := cw.Write([]string{r.Date.String(), FormatValue(r.Value)}); err != nil {
			return n, fmt.Errorf("write row %d: %w", n+1, err)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}
