package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/jonathan/credit-applier/internal/types"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SheetsOptions configures a Google Sheets backed store.
type SheetsOptions struct {
	SpreadsheetURL  string
	Worksheet       string
	CredentialsFile string // service account JSON
	Columns         Columns
}

// Sheets stores records in one worksheet of a Google spreadsheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	cols          Columns

	mu     sync.Mutex
	layout *layout
}

// SpreadsheetID extracts the spreadsheet ID from a sharing URL.
// A bare ID is returned unchanged.
func SpreadsheetID(urlOrID string) (string, error) {
	s := strings.TrimSpace(urlOrID)
	if s == "" {
		return "", fmt.Errorf("spreadsheet URL is empty")
	}
	if m := spreadsheetIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if strings.ContainsAny(s, "/:?") {
		return "", fmt.Errorf("cannot find spreadsheet ID in %q", s)
	}
	return s, nil
}

// NewSheets connects to the Sheets API. Extra client options are appended after
// the credentials option, so tests can redirect the endpoint.
func NewSheets(ctx context.Context, opts SheetsOptions, clientOpts ...option.ClientOption) (*Sheets, error) {
	id, err := SpreadsheetID(opts.SpreadsheetURL)
	if err != nil {
		return nil, &UnavailableError{Op: "connect", Message: "invalid spreadsheet URL", Cause: err}
	}
	if strings.TrimSpace(opts.Worksheet) == "" {
		return nil, &UnavailableError{Op: "connect", Message: "worksheet name is empty"}
	}

	var all []option.ClientOption
	if opts.CredentialsFile != "" {
		all = append(all,
			option.WithCredentialsFile(opts.CredentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	}
	all = append(all, clientOpts...)

	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, &UnavailableError{Op: "connect", Message: "failed to create sheets service", Cause: err}
	}

	cols := opts.Columns
	if cols.ByKind == nil {
		cols = DefaultColumns()
	}

	return &Sheets{
		svc:           svc,
		spreadsheetID: id,
		worksheet:     opts.Worksheet,
		cols:          cols,
	}, nil
}

// sheetRange is the A1 notation covering the whole worksheet.
func (s *Sheets) sheetRange() string {
	return "'" + strings.ReplaceAll(s.worksheet, "'", "''") + "'"
}

// Load reads the worksheet. The worksheet must exist in the spreadsheet.
func (s *Sheets) Load(ctx context.Context) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, &UnavailableError{Op: "load", Message: "failed to open spreadsheet", Cause: err}
	}
	found := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.worksheet {
			found = true
			break
		}
	}
	if !found {
		return nil, &UnavailableError{Op: "load", Message: fmt.Sprintf("worksheet %q not found in spreadsheet", s.worksheet)}
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetRange()).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &UnavailableError{Op: "load", Message: "failed to read worksheet values", Cause: err}
	}

	grid := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		grid[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				grid[i][j] = fmt.Sprint(v)
			}
		}
	}
	if len(grid) == 0 {
		return nil, &EmptyDataError{Source: fmt.Sprintf("worksheet %q", s.worksheet)}
	}

	l, records, err := decodeTable(fmt.Sprintf("worksheet %q", s.worksheet), grid[0], grid[1:], s.cols)
	if err != nil {
		return nil, err
	}
	s.layout = l
	return records, nil
}

// Persist overwrites the loaded range with the given records in a single update call.
func (s *Sheets) Persist(ctx context.Context, records []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout == nil {
		return &UnavailableError{Op: "persist", Message: "persist called before load"}
	}

	grid := encodeTable(s.layout, records)
	values := make([][]interface{}, len(grid))
	for i, row := range grid {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}

	vr := &sheets.ValueRange{
		Range:          s.sheetRange(),
		MajorDimension: "ROWS",
		Values:         values,
	}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetRange(), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return &UnavailableError{Op: "persist", Message: "failed to write worksheet values", Cause: err}
	}
	return nil
}
