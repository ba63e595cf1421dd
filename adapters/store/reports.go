package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sentinel/internal"
	"sentinel/internal/errors"
	"sentinel/internal/migration"
	"sentinel/internal/report"
)

// Archived timestamps are fixed-width UTC text so they sort the same on
// every driver
const archiveTimeLayout = "2006-01-02 15:04:05.000000"

const defaultListLimit = 20

// ReportRepository implements report.Archive on sqlx
type ReportRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ report.Archive = (*ReportRepository)(nil)

// OpenReports connects and brings the archive schema up to date
func OpenReports(ctx context.Context, driver, url string, logger *zap.Logger) (*ReportRepository, error) {
	db, err := Connect(ctx, driver, url)
	if err != nil {
		return nil, err
	}
	repo, err := NewReportRepository(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewReportRepository migrates db and wraps it
func NewReportRepository(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*ReportRepository, error) {
	logger = internal.OrNop(logger)
	if err := migration.NewRunner(logger).Run(ctx, db); err != nil {
		return nil, err
	}
	return &ReportRepository{db: db, logger: logger.Named("archive")}, nil
}

// SaveReport stores r; saving the same report ID twice is an error
func (r *ReportRepository) SaveReport(ctx context.Context, rep *report.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", rep.ID, err)
	}
	s := report.Summarize(rep)
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO quality_reports (id, snapshot_id, source, generated_at, root_causes, insights, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.SnapshotID.String(), s.Source, s.GeneratedAt.UTC().Format(archiveTimeLayout),
		s.RootCauses, s.Insights, string(payload))
	if err != nil {
		return errors.DatabaseError("failed to archive report "+rep.ID, err)
	}
	r.logger.Info("report archived", zap.String("report", rep.ID))
	return nil
}

// GetReport returns the archived report with id
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*report.Report, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, r.db.Rebind(`SELECT payload FROM quality_reports WHERE id = ?`), id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("report " + id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to read report "+id, err)
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &rep, nil
}

// ListReports returns the newest reports first. A non-positive limit means 20.
func (r *ReportRepository) ListReports(ctx context.Context, limit int) ([]report.Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []struct {
		report.Summary
		GeneratedAt string `db:"generated_at"`
	}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, snapshot_id, source, generated_at, root_causes, insights
		FROM quality_reports
		ORDER BY generated_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list reports", err)
	}

	out := make([]report.Summary, len(rows))
	for i, row := range rows {
		out[i] = row.Summary
		ts, err := time.Parse(archiveTimeLayout, row.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("report %s has unreadable generated_at %q: %w", row.ID, row.GeneratedAt, err)
		}
		out[i].GeneratedAt = ts
	}
	return out, nil
}

// Close releases the connection
func (r *ReportRepository) Close() error {
	return r.db.Close()
}
