package report

import (
	"context"
	"time"

	"sentinel/domain/core"
)

// Archive persists generated reports
type Archive interface {
	SaveReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}

// Summary is the listing view of an archived report
type Summary struct {
	ID          string          `json:"id" yaml:"id" db:"id"`
	SnapshotID  core.SnapshotID `json:"snapshot_id" yaml:"snapshot_id" db:"snapshot_id"`
	Source      string          `json:"source" yaml:"source" db:"source"`
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at" db:"-"`
	RootCauses  int             `json:"root_causes" yaml:"root_causes" db:"root_causes"`
	Insights    int             `json:"insights" yaml:"insights" db:"insights"`
}

// Summarize reduces r to its listing view
func Summarize(r *Report) Summary {
	s := Summary{
		ID:          r.ID,
		SnapshotID:  r.SnapshotID,
		Source:      r.Source,
		GeneratedAt: r.GeneratedAt,
	}
	if r.RootCause != nil {
		s.RootCauses = len(r.RootCause.RootCauses)
	}
	if r.Insights != nil {
		s.Insights = r.Insights.TotalInsights
	}
	return s
}
