// Package export writes the backend's CSV download to disk.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pennh4i/tentacool/internal/backend"
)

// File names written by Write.
const (
	PromptsFile   = "prompts.csv"
	ResponsesFile = "responses.csv"
)

// ErrEmpty is returned when the download carries neither table.
var ErrEmpty = errors.New("export is empty")

// Source downloads both tables.
type Source interface {
	DownloadCSV(ctx context.Context) (*backend.CSVExport, error)
}

// File describes one written table.
type File struct {
	Path string `json:"path"`
	// Rows is the number of data rows, header excluded.
	Rows int `json:"rows"`
	// Expected is the row count the backend reported.
	Expected int `json:"expected"`
}

// Result lists the written files.
type Result struct {
	Prompts   File `json:"prompts"`
	Responses File `json:"responses"`
}

// Download fetches the CSV export and writes it into dir.
func Download(ctx context.Context, src Source, dir string) (*Result, error) {
	data, err := src.DownloadCSV(ctx)
	if err != nil {
		return nil, fmt.Errorf("downloading csv: %w", err)
	}
	return Write(dir, data)
}

// Write stores both tables of data as prompts.csv and responses.csv in dir,
// creating it if needed. Each file is written to a temporary name first
// and renamed into place.
func Write(dir string, data *backend.CSVExport) (*Result, error) {
	if data == nil || (data.Prompts == "" && data.Responses == "") {
		return nil, ErrEmpty
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	prompts, err := writeTable(filepath.Join(dir, PromptsFile), data.Prompts)
	if err != nil {
		return nil, err
	}
	prompts.Expected = data.PromptsCount

	responses, err := writeTable(filepath.Join(dir, ResponsesFile), data.Responses)
	if err != nil {
		return nil, err
	}
	responses.Expected = data.ResponsesCount

	return &Result{Prompts: prompts, Responses: responses}, nil
}

func writeTable(path, content string) (File, error) {
	rows, err := countRows(content)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return File{}, fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return File{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return File{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return File{}, fmt.Errorf("renaming %s: %w", path, err)
	}
	return File{Path: path, Rows: rows}, nil
}

// countRows parses content as CSV and returns the number of records after
// the header.
func countRows(content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return len(records) - 1, nil
}
