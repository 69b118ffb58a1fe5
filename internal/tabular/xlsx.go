package tabular

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadOptions selects the sheet and header row of a workbook.
type ReadOptions struct {
	Sheet      string // sheet name; empty selects SheetIndex
	SheetIndex int
	HeaderRow  int // zero-based row holding the headers
}

// Sheet is a named table written into a workbook.
type Sheet struct {
	Name  string
	Table *Table
}

// ReadFile reads one sheet of an xlsx workbook into a Table.
// Cells are read raw so numbers and dates keep their stored values.
func ReadFile(path string, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(opts.SheetIndex)
		if sheet == "" {
			return nil, fmt.Errorf("workbook %s has no sheet %d", filepath.Base(path), opts.SheetIndex)
		}
	}

	return readSheet(f, sheet, opts.HeaderRow)
}

// ReadSheets reads every sheet of a workbook with the header on the first row.
// The returned names preserve workbook order.
func ReadSheets(path string) (map[string]*Table, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	names := f.GetSheetList()
	tables := make(map[string]*Table, len(names))
	for _, name := range names {
		t, err := readSheet(f, name, 0)
		if err != nil {
			return nil, nil, err
		}
		tables[name] = t
	}
	return tables, names, nil
}

// ReadPreview returns up to n non-blank rows from the top of the first sheet.
// Used for content sniffing when a filename is ambiguous.
func ReadPreview(path string, n int) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	preview := make([][]string, 0, n)
	for _, row := range rows {
		if len(preview) == n {
			break
		}
		if !isBlank(row) {
			preview = append(preview, row)
		}
	}
	return preview, nil
}

// FindHeaderRow returns the zero-based index of the first row, among the
// first maxRows of the first sheet, that carries every wanted header.
// Statements with a title block above the table need this.
func FindHeaderRow(path string, want []string, maxRows int) (int, bool, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows: %w", err)
	}
	for i, row := range rows {
		if i == maxRows {
			break
		}
		present := make(map[string]bool, len(row))
		for _, cell := range row {
			present[normalizeHeader(cell)] = true
		}
		found := true
		for _, w := range want {
			if !present[normalizeHeader(w)] {
				found = false
				break
			}
		}
		if found {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func readSheet(f *excelize.File, sheet string, headerRow int) (*Table, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if headerRow >= len(rows) {
		return New(), nil
	}

	headers := make([]string, len(rows[headerRow]))
	for i, h := range rows[headerRow] {
		headers[i] = strings.TrimSpace(h)
	}
	t := New(headers...)
	for _, row := range rows[headerRow+1:] {
		if isBlank(row) {
			continue
		}
		t.Append(row)
	}
	return t, nil
}

// WriteFile writes the sheets into a new xlsx workbook at path, replacing any
// existing file. The file is written to a temporary name first and renamed.
func WriteFile(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", s.Name, err)
		}
		if err := writeTable(f, s.Name, s.Table); err != nil {
			return err
		}
	}

	// written beside the target and renamed so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary workbook: %w", err)
	}
	if _, err := f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to save workbook %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to save workbook %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, t *Table) error {
	if err := setRow(f, sheet, 1, t.Headers); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", rowNum, err)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", rowNum, sheet, err)
	}
	return nil
}
