package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/jackc/pgx/v5"
)

const reportColumns = `
    id::text, owner_id::text, image_id, processed_image_id,
    latitude, longitude, timestamp, status,
    type, severity, summary, location`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (model.Report, error) {
	var report model.Report
	err := row.Scan(
		&report.ID, &report.OwnerID, &report.ImageID, &report.ProcessedImageID,
		&report.Latitude, &report.Longitude, &report.Timestamp, &report.Status,
		&report.Type, &report.Severity, &report.Summary, &report.Location,
	)
	return report, err
}

// CreateReport inserts a new report document. The id is assigned by the
// database, as is the timestamp when the report carries none.
func (s *Store) CreateReport(ctx context.Context, report model.Report) (model.Report, error) {
	query := `
        INSERT INTO reports (owner_id, image_id, latitude, longitude, status, timestamp)
        VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))
        RETURNING ` + reportColumns

	created, err := scanReport(s.db.Pool().QueryRow(ctx, query,
		report.OwnerID, report.ImageID, report.Latitude, report.Longitude, report.Status,
		submittedAt(report.Timestamp),
	))
	if err != nil {
		return model.Report{}, fmt.Errorf("creating report: %w", err)
	}
	return created, nil
}

func submittedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// ListReports returns reports newest first. The owner-scoped variant only
// selects the fields the mobile list needs.
func (s *Store) ListReports(ctx context.Context, q model.ReportQuery) ([]model.Report, error) {
	if q.OwnerID != "" {
		return s.listOwnerReports(ctx, q.OwnerID)
	}

	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY timestamp DESC, id`
	rows, err := s.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *Store) listOwnerReports(ctx context.Context, ownerID string) ([]model.Report, error) {
	query := `
        SELECT id::text, owner_id::text, image_id, timestamp, latitude, longitude, status
        FROM reports
        WHERE owner_id = $1
        ORDER BY timestamp DESC, id
    `
	rows, err := s.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying owner reports: %w", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		var report model.Report
		if err := rows.Scan(
			&report.ID, &report.OwnerID, &report.ImageID, &report.Timestamp,
			&report.Latitude, &report.Longitude, &report.Status,
		); err != nil {
			return nil, fmt.Errorf("scanning owner report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *Store) GetReport(ctx context.Context, id string) (model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	report, err := scanReport(s.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Report{}, model.ErrReportNotFound
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("getting report: %w", err)
	}
	return report, nil
}

func (s *Store) UpdateReportStatus(ctx context.Context, id string, status model.Status) (model.Report, error) {
	query := `
        UPDATE reports SET status = $1
        WHERE id = $2
        RETURNING ` + reportColumns

	report, err := scanReport(s.db.Pool().QueryRow(ctx, query, status, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Report{}, model.ErrReportNotFound
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("updating report status: %w", err)
	}
	return report, nil
}

func (s *Store) UpdateReportLocation(ctx context.Context, id string, location string) error {
	result, err := s.db.Pool().Exec(ctx, `UPDATE reports SET location = $1 WHERE id = $2`, location, id)
	if err != nil {
		return fmt.Errorf("updating report location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrReportNotFound
	}
	return nil
}

// AttachDetection records the detector output for the report that owns the
// original image. processed_image_id is append-only: once set it is kept.
func (s *Store) AttachDetection(ctx context.Context, d model.Detection) (model.Report, error) {
	var report model.Report
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		current, err := scanReport(tx.QueryRow(ctx,
			`SELECT `+reportColumns+` FROM reports WHERE image_id = $1 FOR UPDATE`, d.OriginalImageID))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrReportNotFound
		}
		if err != nil {
			return err
		}
		if current.ProcessedImageID != nil {
			report = current
			return nil
		}

		query := `
            UPDATE reports
            SET processed_image_id = $1,
                type = COALESCE(NULLIF($2, ''), type),
                severity = COALESCE(NULLIF($3, ''), severity),
                summary = COALESCE(NULLIF($4, ''), summary)
            WHERE id = $5
            RETURNING ` + reportColumns
		report, err = scanReport(tx.QueryRow(ctx, query,
			d.ProcessedImageID, d.Type, d.Severity, d.Summary, current.ID))
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrReportNotFound) {
			return model.Report{}, err
		}
		return model.Report{}, fmt.Errorf("attaching detection: %w", err)
	}
	return report, nil
}
