package excel

// ExcelData is the raw header row and trimmed string cells of a sheet or CSV
// file. Every row has one cell per header.
type ExcelData struct {
	Headers []string
	Rows    [][]string
}
