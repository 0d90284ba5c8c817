package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"korner-support-service/internal/models"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	mustDB(db)
	return &ReportRepository{db: db}
}

// ListTypes returns active report types ordered by sort_order with titles in the given locale.
// A type without a translation falls back to its code as title.
func (r *ReportRepository) ListTypes(ctx context.Context, locale string) ([]models.ReportTypeItem, error) {
	query := `
		SELECT rt.id, rt.code, COALESCE(t.title, rt.code), t.description, rt.is_comment_required, rt.sort_order
		FROM report_types rt
		LEFT JOIN report_type_translations t ON t.report_type_id = rt.id AND t.locale = $1
		WHERE rt.is_active = TRUE
		ORDER BY rt.sort_order ASC, rt.id ASC`
	rows, err := r.db.QueryContext(ctx, query, locale)
	if err != nil {
		return nil, fmt.Errorf("list report types: %w", err)
	}
	defer rows.Close()

	items := []models.ReportTypeItem{}
	for rows.Next() {
		var it models.ReportTypeItem
		if err := rows.Scan(&it.ID, &it.Code, &it.Title, &it.Description, &it.IsCommentRequired, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scan report type: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateReport resolves the active type by code and writes the report with its context.
// ErrNotFound means the code is unknown or inactive; nothing is written in that case.
func (r *ReportRepository) CreateReport(ctx context.Context, typeCode string, report *models.Report, rc *models.ReportContextRequest) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var typeID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM report_types WHERE code = $1 AND is_active = TRUE`, typeCode,
		).Scan(&typeID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup report type: %w", err)
		}

		report.ReportTypeID = typeID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO reports (report_type_id, reporter_user_id, reporter_email, comment, status)
			VALUES ($1, $2, $3, $4, 'created')
			RETURNING id, status, created_at, updated_at`,
			typeID, report.ReporterUserID, report.ReporterEmail, report.Comment,
		).Scan(&report.ID, &report.Status, &report.CreatedAt, &report.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		var metadata interface{}
		if len(rc.Metadata) > 0 && string(rc.Metadata) != "null" {
			metadata = []byte(rc.Metadata)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_context (report_id, source, screen, content_type, content_id, creator_user_id, url, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			report.ID, rc.Source, rc.Screen, rc.ContentType, rc.ContentID, rc.CreatorUserID, rc.URL, metadata,
		)
		if err != nil {
			return fmt.Errorf("insert report context: %w", err)
		}
		return nil
	})
}
