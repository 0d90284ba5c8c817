package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"korner-support-service/internal/models"
)

func (r *KYCRepository) GetLatestDecision(ctx context.Context, applicationID int64) (*models.KYCDecision, error) {
	query := `
		SELECT id, kyc_application_id, admin_user_id, decision, reason_codes, comment, created_at
		FROM kyc_decisions
		WHERE kyc_application_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	d := &models.KYCDecision{}
	var codes pq.StringArray
	err := r.db.QueryRowContext(ctx, query, applicationID).Scan(
		&d.ID, &d.ApplicationID, &d.AdminUserID, &d.Decision, &codes, &d.Comment, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest kyc decision: %w", err)
	}
	d.ReasonCodes = []string(codes)
	if d.ReasonCodes == nil {
		d.ReasonCodes = []string{}
	}
	return d, nil
}

// UnknownReasonCodes returns the subset of codes missing from the catalog, input order kept.
func (r *KYCRepository) UnknownReasonCodes(ctx context.Context, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT code FROM kyc_reason_codes WHERE code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("check kyc reason codes: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan kyc reason code: %w", err)
		}
		known[code] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unknown []string
	for _, c := range codes {
		if !known[c] {
			unknown = append(unknown, c)
		}
	}
	return unknown, nil
}

func (r *KYCRepository) ListReasonCodes(ctx context.Context) ([]models.KYCReasonCode, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, type, description, used_for FROM kyc_reason_codes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list kyc reason codes: %w", err)
	}
	defer rows.Close()

	items := []models.KYCReasonCode{}
	for rows.Next() {
		var (
			rc      models.KYCReasonCode
			usedFor []byte
		)
		if err := rows.Scan(&rc.Code, &rc.Type, &rc.Description, &usedFor); err != nil {
			return nil, fmt.Errorf("scan kyc reason code: %w", err)
		}
		if err := json.Unmarshal(usedFor, &rc.UsedFor); err != nil {
			return nil, fmt.Errorf("decode used_for of %s: %w", rc.Code, err)
		}
		items = append(items, rc)
	}
	return items, rows.Err()
}

// ApplyDecision moves the application from -> to and appends the decision row, atomically.
// ErrStatusChanged is returned when the application is no longer in from.
func (r *KYCRepository) ApplyDecision(ctx context.Context, applicationID int64, from, to string, d *models.KYCDecision) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE kyc_applications SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
			to, applicationID, from,
		)
		if err != nil {
			return fmt.Errorf("update kyc status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update kyc status: %w", err)
		}
		if n == 0 {
			return ErrStatusChanged
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO kyc_decisions (kyc_application_id, admin_user_id, decision, reason_codes, comment)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			applicationID, d.AdminUserID, d.Decision, pq.Array(d.ReasonCodes), d.Comment,
		).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert kyc decision: %w", err)
		}
		d.ApplicationID = applicationID
		return nil
	})
}
