package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	// Database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"sentinel/adapters/excel"
	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/ports"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteTimeLayout keeps timestamps readable by the ingestion coercer
const sqliteTimeLayout = "2006-01-02 15:04:05"

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// dialect holds the per-driver column types
type dialect struct {
	numeric  string
	temporal string
	text     string
	timeArg  func(time.Time) any
}

var dialects = map[string]dialect{
	DriverPostgres: {
		numeric:  "DOUBLE PRECISION",
		temporal: "TIMESTAMP",
		text:     "TEXT",
		timeArg:  func(t time.Time) any { return t },
	},
	DriverSQLite: {
		numeric:  "REAL",
		temporal: "TEXT",
		text:     "TEXT",
		timeArg:  func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	},
}

// tableRepository implements ports.TableRepository on sqlx
type tableRepository struct {
	db      *sqlx.DB
	dialect dialect
	coercer *excel.TypeCoercer
	logger  *zap.Logger
}

// Connect opens a verified connection for one of the supported drivers
func Connect(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, core.NewInvalidArgumentError("unsupported database driver %q", driver)
	}
	db, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Open connects to the database and returns a table repository over it
func Open(ctx context.Context, driver, url string, logger *zap.Logger) (ports.TableRepository, error) {
	db, err := Connect(ctx, driver, url)
	if err != nil {
		return nil, err
	}
	return NewTableRepository(db, logger), nil
}

// NewTableRepository wraps an existing connection
func NewTableRepository(db *sqlx.DB, logger *zap.Logger) ports.TableRepository {
	d, ok := dialects[db.DriverName()]
	if !ok {
		d = dialects[DriverPostgres]
	}
	return &tableRepository{
		db:      db,
		dialect: d,
		coercer: excel.NewTypeCoercer(excel.DefaultCoercionConfig()),
		logger:  internal.OrNop(logger).Named("store"),
	}
}

// LoadTable reads all rows and types the columns the way file ingestion does
func (r *tableRepository) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	ident, err := quoteIdent(name)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	var grid [][]any
	for rows.Next() {
		record := make(map[string]any, len(headers))
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", name, err)
		}
		cells := make([]any, len(headers))
		for j, h := range headers {
			cells[j] = record[h]
		}
		grid = append(grid, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", name, err)
	}

	t, err := r.coercer.BuildTable(headers, grid)
	if err != nil {
		return nil, err
	}
	t, err = excel.WithDeviation(t, r.coercer)
	if err != nil {
		return nil, err
	}

	r.logger.Info("table loaded from database",
		zap.String("table", name),
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()))
	return t, nil
}

// SaveTable creates the table if absent and appends every row in one transaction
func (r *tableRepository) SaveTable(ctx context.Context, name string, t *table.Table) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	columns := t.Columns()
	if len(columns) == 0 {
		return core.NewInvalidArgumentError("table has no columns")
	}

	defs := make([]string, len(columns))
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for j, col := range columns {
		colIdent, err := quoteIdent(col.Name())
		if err != nil {
			return err
		}
		names[j] = colIdent
		defs[j] = colIdent + " " + r.columnType(col.Type())
		marks[j] = "?"
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	insert := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident, strings.Join(names, ", "), strings.Join(marks, ", ")))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i := 0; i < t.Len(); i++ {
		for j, col := range columns {
			args[j] = r.arg(col, i)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	r.logger.Info("table saved to database", zap.String("table", name), zap.Int("rows", t.Len()))
	return nil
}

func (r *tableRepository) Close() error {
	return r.db.Close()
}

func (r *tableRepository) columnType(kind table.ColumnType) string {
	switch kind {
	case table.TypeNumeric:
		return r.dialect.numeric
	case table.TypeTemporal:
		return r.dialect.temporal
	default:
		return r.dialect.text
	}
}

// arg converts a cell to a driver argument; missing cells become NULL
func (r *tableRepository) arg(col *table.Column, i int) any {
	switch v := col.Value(i).(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return v
	case time.Time:
		return r.dialect.timeArg(v)
	default:
		return v
	}
}

// quoteIdent double-quotes an identifier, which both drivers accept
func quoteIdent(name string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsRune(name, 0) {
		return "", core.NewInvalidArgumentError("invalid identifier %q", name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}
