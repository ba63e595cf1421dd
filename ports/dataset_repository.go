package ports

import (
	"context"

	"sentinel/domain/table"
)

// TableRepository persists quality tables in a relational database
type TableRepository interface {
	// LoadTable reads every row of the named database table
	LoadTable(ctx context.Context, name string) (*table.Table, error)
	// SaveTable creates the named database table if absent and appends t's rows
	SaveTable(ctx context.Context, name string, t *table.Table) error
	Close() error
}
