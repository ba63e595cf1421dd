package core

import (
	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SnapshotID ID
	ReportID   ID
)

func (id SnapshotID) String() string { return ID(id).String() }
func (id ReportID) String() string   { return ID(id).String() }

// NewSnapshotID returns a fresh snapshot identifier.
func NewSnapshotID() SnapshotID { return SnapshotID(NewID()) }

// NewReportID returns a fresh report identifier.
func NewReportID() ReportID { return ReportID(NewID()) }
