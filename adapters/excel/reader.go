package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal"
)

// FileType is a supported upload format
type FileType string

const (
	FileTypeXLSX FileType = "xlsx"
	FileTypeCSV  FileType = "csv"
)

// Columns that feed the derived deviation signal
const (
	ColMeasuredValue = "Measured Value"
	ColDeviation     = "Deviation"
)

var nominalNames = []string{"nominal", "nomial"}

// DetectFileType maps a file name to a supported format
func DetectFileType(name string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FileTypeXLSX, nil
	case ".csv":
		return FileTypeCSV, nil
	default:
		return "", core.NewInvalidArgumentError("unsupported file type %q, expected .xlsx or .csv", filepath.Ext(name))
	}
}

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	src      io.Reader
	fileType FileType
	sheet    string
	coercer  *TypeCoercer
	logger   *zap.Logger
}

// ReaderOption configures a DataReader
type ReaderOption func(*DataReader)

// WithSheet reads the named worksheet instead of the first one
func WithSheet(sheet string) ReaderOption {
	return func(r *DataReader) { r.sheet = sheet }
}

// WithLogger attaches a logger
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *DataReader) { r.logger = internal.OrNop(logger).Named("excel") }
}

// WithCoercion overrides the type inference thresholds
func WithCoercion(config CoercionConfig) ReaderOption {
	return func(r *DataReader) { r.coercer = NewTypeCoercer(config) }
}

// NewDataReader creates a reader for a file on disk; the extension picks the format
func NewDataReader(filePath string, opts ...ReaderOption) (*DataReader, error) {
	fileType, err := DetectFileType(filePath)
	if err != nil {
		return nil, err
	}
	return newReader(filePath, nil, fileType, opts), nil
}

// NewStreamReader reads an uploaded stream; name only selects the format
func NewStreamReader(src io.Reader, name string, opts ...ReaderOption) (*DataReader, error) {
	fileType, err := DetectFileType(name)
	if err != nil {
		return nil, err
	}
	return newReader(name, src, fileType, opts), nil
}

func newReader(path string, src io.Reader, fileType FileType, opts []ReaderOption) *DataReader {
	r := &DataReader{
		filePath: path,
		src:      src,
		fileType: fileType,
		coercer:  NewTypeCoercer(DefaultCoercionConfig()),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadData reads the raw header and string grid
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("reading file", zap.String("type", string(r.fileType)), zap.String("path", r.filePath))

	src := r.src
	if src == nil {
		file, err := os.Open(r.filePath)
		if err != nil {
			return nil, fmt.Errorf("open %s file: %w", strings.ToUpper(string(r.fileType)), err)
		}
		defer file.Close()
		src = file
	}

	readStart := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case FileTypeCSV:
		rows, err = r.readCSV(src)
	default:
		rows, err = r.readExcel(src)
	}
	if err != nil {
		return nil, err
	}
	r.logger.Debug("file read",
		zap.Int("rows", len(rows)),
		zap.Float64("elapsed_ms", float64(time.Since(readStart).Nanoseconds())/1e6))

	if len(rows) < 2 {
		return nil, core.NewInvalidArgumentError("%s file must have at least a header row and one data row",
			strings.ToUpper(string(r.fileType)))
	}
	return r.processRows(rows), nil
}

// ReadTable reads the file and types its columns. A Deviation column is
// derived when measured and nominal values are present.
func (r *DataReader) ReadTable() (*table.Table, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	raw := make([][]any, len(data.Rows))
	for i, row := range data.Rows {
		raw[i] = make([]any, len(row))
		for j, cell := range row {
			raw[i][j] = cell
		}
	}
	t, err := r.coercer.BuildTable(data.Headers, raw)
	if err != nil {
		return nil, err
	}
	t, err = WithDeviation(t, r.coercer)
	if err != nil {
		return nil, err
	}
	r.logger.Info("table loaded",
		zap.String("path", r.filePath),
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()))
	return t, nil
}

func (r *DataReader) readExcel(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, core.NewInvalidArgumentError("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSV(src io.Reader) ([][]string, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV file: %w", err)
	}
	return rows, nil
}

// processRows trims cells and names blank or repeated headers
func (r *DataReader) processRows(rows [][]string) *ExcelData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	seen := make(map[string]int, len(headerRow))
	for i, header := range headerRow {
		name := strings.TrimSpace(header)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		headers[i] = name
	}

	dataRows := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, len(headers))
		blank := true
		for j := 0; j < len(row) && j < len(headers); j++ {
			cells[j] = strings.TrimSpace(row[j])
			if cells[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		dataRows = append(dataRows, cells)
	}

	r.logger.Debug("file processed", zap.Int("columns", len(headers)), zap.Int("rows", len(dataRows)))
	return &ExcelData{Headers: headers, Rows: dataRows}
}

// WithDeviation appends Deviation = |Measured Value - Nominal| when both
// columns exist. Unparseable inputs count as zero. Tables that already carry
// a Deviation column are returned unchanged.
func WithDeviation(t *table.Table, coercer *TypeCoercer) (*table.Table, error) {
	measured, ok := t.Column(ColMeasuredValue)
	if !ok || t.Has(ColDeviation) {
		return t, nil
	}
	var nominal *table.Column
	for _, col := range t.Columns() {
		for _, name := range nominalNames {
			if strings.EqualFold(col.Name(), name) {
				nominal = col
				break
			}
		}
		if nominal != nil {
			break
		}
	}
	if nominal == nil {
		return t, nil
	}

	deviation := make([]float64, t.Len())
	for i := range deviation {
		deviation[i] = math.Abs(cellNumber(coercer, measured, i) - cellNumber(coercer, nominal, i))
	}
	return table.New(append(t.Columns(), table.NewNumericColumn(ColDeviation, deviation))...)
}

func cellNumber(coercer *TypeCoercer, col *table.Column, i int) float64 {
	if v, ok := col.Float(i); ok {
		return v
	}
	if s, ok := col.Text(i); ok {
		if v, ok := coercer.ParseNumeric(s); ok {
			return v
		}
	}
	return 0
}
