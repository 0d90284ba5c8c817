package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"korner-support-service/internal/models"
)

type KYCRepository struct {
	db *sql.DB
}

func NewKYCRepository(db *sql.DB) *KYCRepository {
	mustDB(db)
	return &KYCRepository{db: db}
}

const settingsColumns = `user_id, total_attempts, max_attempts, is_blocked, blocked_at, created_at, updated_at`

func scanSettings(row interface{ Scan(...interface{}) error }) (*models.KYCUserSettings, error) {
	s := &models.KYCUserSettings{}
	if err := row.Scan(&s.UserID, &s.TotalAttempts, &s.MaxAttempts, &s.IsBlocked, &s.BlockedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOrCreateSettings returns the user's settings row, inserting a fresh one
// (zero attempts, unblocked) in the same statement when it does not exist yet.
func (r *KYCRepository) GetOrCreateSettings(ctx context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error) {
	const query = `
		INSERT INTO kyc_user_settings (user_id, total_attempts, max_attempts, is_blocked)
		VALUES ($1, 0, $2, FALSE)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + settingsColumns
	s, err := scanSettings(r.db.QueryRowContext(ctx, query, userID, maxAttempts))
	if err != nil {
		return nil, fmt.Errorf("get or create kyc settings: %w", err)
	}
	return s, nil
}

func (r *KYCRepository) IncrementAttempts(ctx context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error) {
	return incrementAttempts(ctx, r.db, userID, maxAttempts)
}

// incrementAttempts bumps total_attempts atomically and flips is_blocked once
// the new total reaches max_attempts. blocked_at is stamped only the first time.
func incrementAttempts(ctx context.Context, q querier, userID int64, maxAttempts int) (*models.KYCUserSettings, error) {
	const query = `
		INSERT INTO kyc_user_settings (user_id, total_attempts, max_attempts, is_blocked, blocked_at)
		VALUES ($1, 1, $2, 1 >= $2, CASE WHEN 1 >= $2 THEN NOW() END)
		ON CONFLICT (user_id) DO UPDATE SET
			total_attempts = kyc_user_settings.total_attempts + 1,
			is_blocked = kyc_user_settings.is_blocked OR kyc_user_settings.total_attempts + 1 >= kyc_user_settings.max_attempts,
			blocked_at = CASE
				WHEN kyc_user_settings.blocked_at IS NULL
					AND kyc_user_settings.total_attempts + 1 >= kyc_user_settings.max_attempts
				THEN NOW()
				ELSE kyc_user_settings.blocked_at
			END,
			updated_at = NOW()
		RETURNING ` + settingsColumns
	s, err := scanSettings(q.QueryRowContext(ctx, query, userID, maxAttempts))
	if err != nil {
		return nil, fmt.Errorf("increment kyc attempts: %w", err)
	}
	return s, nil
}
