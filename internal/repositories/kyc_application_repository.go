package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"korner-support-service/internal/models"
)

const applicationColumns = `id, user_id, status, attempt_number, email, phone, first_name, last_name, middle_name,
	date_of_birth, country_of_residence, submitted_at, expires_at, created_at, updated_at`

func scanApplication(row interface{ Scan(...interface{}) error }) (*models.KYCApplication, error) {
	a := &models.KYCApplication{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.Status, &a.AttemptNumber, &a.Email, &a.Phone, &a.FirstName, &a.LastName, &a.MiddleName,
		&a.DateOfBirth, &a.CountryOfResidence, &a.SubmittedAt, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActiveApplication returns the most recently created application of the user.
func (r *KYCRepository) GetActiveApplication(ctx context.Context, userID int64) (*models.KYCApplication, error) {
	query := `SELECT ` + applicationColumns + `
		FROM kyc_applications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	a, err := scanApplication(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active kyc application: %w", err)
	}
	return a, nil
}

func (r *KYCRepository) GetApplicationByID(ctx context.Context, id int64) (*models.KYCApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM kyc_applications WHERE id = $1`
	a, err := scanApplication(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get kyc application: %w", err)
	}
	return a, nil
}

// GetLatestApprovedApplication is the revoke target.
func (r *KYCRepository) GetLatestApprovedApplication(ctx context.Context, userID int64) (*models.KYCApplication, error) {
	query := `SELECT ` + applicationColumns + `
		FROM kyc_applications
		WHERE user_id = $1 AND status = 'approved'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	a, err := scanApplication(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approved kyc application: %w", err)
	}
	return a, nil
}

// DeleteExpiredDraft removes the draft only if it is still a draft; files go with it (ON DELETE CASCADE).
func (r *KYCRepository) DeleteExpiredDraft(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kyc_applications WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("delete kyc draft: %w", err)
	}
	return nil
}

func (r *KYCRepository) CreateDraft(ctx context.Context, a *models.KYCApplication) (*models.KYCApplication, error) {
	query := `
		INSERT INTO kyc_applications (
			user_id, status, attempt_number, email, phone, first_name, last_name, middle_name,
			date_of_birth, country_of_residence, expires_at
		)
		VALUES ($1, 'draft', $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + applicationColumns
	created, err := scanApplication(r.db.QueryRowContext(ctx, query,
		a.UserID, a.AttemptNumber, a.Email, a.Phone, a.FirstName, a.LastName, a.MiddleName,
		a.DateOfBirth, a.CountryOfResidence, a.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("create kyc draft: %w", err)
	}
	return created, nil
}

// UpdateDraft merges non-nil profile fields into a draft and refreshes its expiry.
// ErrStatusChanged means the row left draft between the read and this write.
func (r *KYCRepository) UpdateDraft(ctx context.Context, id int64, p *models.KYCApplication, expiresAt time.Time) (*models.KYCApplication, error) {
	query := `
		UPDATE kyc_applications SET
			email = COALESCE($2, email),
			phone = COALESCE($3, phone),
			first_name = COALESCE($4, first_name),
			last_name = COALESCE($5, last_name),
			middle_name = COALESCE($6, middle_name),
			date_of_birth = COALESCE($7, date_of_birth),
			country_of_residence = COALESCE($8, country_of_residence),
			expires_at = $9,
			updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING ` + applicationColumns
	updated, err := scanApplication(r.db.QueryRowContext(ctx, query,
		id, p.Email, p.Phone, p.FirstName, p.LastName, p.MiddleName, p.DateOfBirth, p.CountryOfResidence, expiresAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update kyc draft: %w", err)
	}
	return updated, nil
}

// SubmitApplication moves the draft to pending and counts the attempt in one transaction.
func (r *KYCRepository) SubmitApplication(ctx context.Context, id, userID int64, maxAttempts int) (*models.KYCApplication, *models.KYCUserSettings, error) {
	var (
		app      *models.KYCApplication
		settings *models.KYCUserSettings
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE kyc_applications
			SET status = 'pending', submitted_at = NOW(), expires_at = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'draft'
			RETURNING ` + applicationColumns
		var err error
		app, err = scanApplication(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusChanged
		}
		if err != nil {
			return fmt.Errorf("submit kyc application: %w", err)
		}

		settings, err = incrementAttempts(ctx, tx, userID, maxAttempts)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return app, settings, nil
}

// ListApplications pages by id descending; the caller passes limit+1 to detect a next page.
func (r *KYCRepository) ListApplications(ctx context.Context, f models.KYCApplicationFilter, afterID int64) ([]models.KYCApplication, error) {
	qb := psql.Select(applicationColumns).
		From("kyc_applications").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit))
	if f.Status != "" {
		qb = qb.Where("status = ?", f.Status)
	}
	if f.Country != "" {
		qb = qb.Where("country_of_residence = ?", f.Country)
	}
	if f.AttemptNumber > 0 {
		qb = qb.Where("attempt_number = ?", f.AttemptNumber)
	}
	if afterID > 0 {
		qb = qb.Where("id < ?", afterID)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build kyc list query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kyc applications: %w", err)
	}
	defer rows.Close()

	var apps []models.KYCApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}
