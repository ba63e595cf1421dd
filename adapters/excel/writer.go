package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"sentinel/domain/core"
	"sentinel/domain/table"
)

// DefaultSheet names the worksheet WriteXLSX fills when none is given
const DefaultSheet = "Sheet1"

// WriteFile exports t to path, choosing the format from the extension
func WriteFile(path string, t *table.Table, sheet string) error {
	fileType, err := DetectFileType(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	switch fileType {
	case FileTypeCSV:
		err = WriteCSV(f, t)
	default:
		err = WriteXLSX(f, t, sheet)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes a header row and one record per row. Missing cells are
// empty; timestamps use the sample layout.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	cols := t.Columns()
	record := make([]string, len(cols))
	for i := 0; i < t.Len(); i++ {
		for c, col := range cols {
			record[c], _ = col.Key(i)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes t to a single worksheet. Numeric cells stay numbers so
// the workbook reads back without coercion loss.
func WriteXLSX(w io.Writer, t *table.Table, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if sheet != DefaultSheet {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet(DefaultSheet); err != nil {
			return err
		}
	}

	header := make([]any, 0, t.Width())
	for _, name := range t.Names() {
		header = append(header, name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	cols := t.Columns()
	row := make([]any, len(cols))
	for i := 0; i < t.Len(); i++ {
		for c, col := range cols {
			row[c] = col.Render(i, core.SampleLayout)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
