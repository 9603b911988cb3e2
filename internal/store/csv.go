package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonathan/credit-applier/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV stores records in a local spreadsheet export.
// Both comma and semicolon separated files are read; the separator found is kept on write.
type CSV struct {
	path string
	cols Columns

	mu     sync.Mutex
	layout *layout
	comma  rune
	bom    bool
}

// NewCSV creates a store backed by the file at path.
func NewCSV(path string, cols Columns) *CSV {
	return &CSV{path: path, cols: cols, comma: ','}
}

// Load reads every data row of the file.
func (s *CSV) Load(_ context.Context) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &UnavailableError{Op: "load", Message: fmt.Sprintf("failed to read %s", s.path), Cause: err}
	}

	s.bom = bytes.HasPrefix(data, utf8BOM)
	data = bytes.TrimPrefix(data, utf8BOM)
	s.comma = detectComma(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = s.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, &UnavailableError{Op: "load", Message: fmt.Sprintf("failed to parse %s", s.path), Cause: err}
	}
	if len(all) == 0 {
		return nil, &UnavailableError{Op: "load", Message: fmt.Sprintf("%s is empty", s.path)}
	}

	l, records, err := decodeTable(s.path, all[0], all[1:], s.cols)
	if err != nil {
		return nil, err
	}
	s.layout = l
	return records, nil
}

// Persist atomically replaces the file with the given records.
func (s *CSV) Persist(_ context.Context, records []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout == nil {
		return &UnavailableError{Op: "persist", Message: "persist called before load"}
	}

	var buf bytes.Buffer
	if s.bom {
		buf.Write(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	w.Comma = s.comma
	if err := w.WriteAll(encodeTable(s.layout, records)); err != nil {
		return &UnavailableError{Op: "persist", Message: "failed to encode rows", Cause: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &UnavailableError{Op: "persist", Message: "failed to create temp file", Cause: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return &UnavailableError{Op: "persist", Message: "failed to write temp file", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &UnavailableError{Op: "persist", Message: "failed to sync temp file", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &UnavailableError{Op: "persist", Message: "failed to close temp file", Cause: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &UnavailableError{Op: "persist", Message: fmt.Sprintf("failed to replace %s", s.path), Cause: err}
	}
	return nil
}

// detectComma picks ';' when the header line has more semicolons than commas.
func detectComma(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
