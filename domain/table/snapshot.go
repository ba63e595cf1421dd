package table

import (
	"sentinel/domain/core"
)

// Snapshot pins one immutable table version. Every analysis receives a
// snapshot (or its table) explicitly; nothing reads a shared "current" table.
type Snapshot struct {
	ID          core.SnapshotID `json:"id"`
	Source      string          `json:"source"`
	LoadedAt    core.Timestamp  `json:"loaded_at"`
	Fingerprint core.Hash       `json:"fingerprint"`

	table *Table
}

// NewSnapshot wraps t with a fresh identity
func NewSnapshot(t *Table, source string) *Snapshot {
	return &Snapshot{
		ID:          core.NewSnapshotID(),
		Source:      source,
		LoadedAt:    core.Now(),
		Fingerprint: t.Fingerprint(),
		table:       t,
	}
}

// Table returns the pinned table
func (s *Snapshot) Table() *Table { return s.table }
