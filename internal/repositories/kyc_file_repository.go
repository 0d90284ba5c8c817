package repositories

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"korner-support-service/internal/models"
)

const fileColumns = `id, kyc_application_id, file_id, file_type, side, mime_type, size_bytes, s3_key, upload_status, created_at, updated_at`

func scanFile(row interface{ Scan(...interface{}) error }) (*models.KYCFile, error) {
	f := &models.KYCFile{}
	err := row.Scan(&f.ID, &f.ApplicationID, &f.FileID, &f.FileType, &f.Side, &f.MimeType, &f.SizeBytes,
		&f.StorageKey, &f.UploadStatus, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *KYCRepository) CreateFile(ctx context.Context, f *models.KYCFile) error {
	query := `
		INSERT INTO kyc_files (kyc_application_id, file_id, file_type, side, mime_type, size_bytes, s3_key, upload_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id, upload_status, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		f.ApplicationID, f.FileID, f.FileType, f.Side, f.MimeType, f.SizeBytes, f.StorageKey,
	).Scan(&f.ID, &f.UploadStatus, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create kyc file: %w", err)
	}
	return nil
}

// ConfirmUpload flips pending -> uploaded for a file owned by one of the user's applications.
// Returns false when nothing matched.
func (r *KYCRepository) ConfirmUpload(ctx context.Context, userID int64, fileID string) (bool, error) {
	query := `
		UPDATE kyc_files SET upload_status = 'uploaded', updated_at = NOW()
		WHERE file_id = $1
			AND upload_status = 'pending'
			AND kyc_application_id IN (SELECT id FROM kyc_applications WHERE user_id = $2)`
	res, err := r.db.ExecContext(ctx, query, fileID, userID)
	if err != nil {
		return false, fmt.Errorf("confirm kyc upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm kyc upload: %w", err)
	}
	return n == 1, nil
}

// AttachFiles confirms all fileIDs or none: the count guard makes the update a no-op
// unless every id belongs to the application and is uploaded.
func (r *KYCRepository) AttachFiles(ctx context.Context, applicationID int64, fileIDs []string) (bool, error) {
	query := `
		UPDATE kyc_files SET upload_status = 'confirmed', updated_at = NOW()
		WHERE kyc_application_id = $1
			AND file_id = ANY($2)
			AND upload_status = 'uploaded'
			AND (
				SELECT COUNT(*) FROM kyc_files
				WHERE kyc_application_id = $1 AND file_id = ANY($2) AND upload_status = 'uploaded'
			) = $3`
	res, err := r.db.ExecContext(ctx, query, applicationID, pq.Array(fileIDs), len(fileIDs))
	if err != nil {
		return false, fmt.Errorf("attach kyc files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach kyc files: %w", err)
	}
	return n == int64(len(fileIDs)), nil
}

func (r *KYCRepository) ListConfirmedFiles(ctx context.Context, applicationID int64) ([]models.KYCFile, error) {
	query := `SELECT ` + fileColumns + `
		FROM kyc_files
		WHERE kyc_application_id = $1 AND upload_status = 'confirmed'
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list kyc files: %w", err)
	}
	defer rows.Close()

	var files []models.KYCFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}
