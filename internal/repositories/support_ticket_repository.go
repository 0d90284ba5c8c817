package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"korner-support-service/internal/models"
)

type SupportTicketRepository struct {
	db *sql.DB
}

func NewSupportTicketRepository(db *sql.DB) *SupportTicketRepository {
	mustDB(db)
	return &SupportTicketRepository{db: db}
}

const ticketColumns = `st.id, st.support_ticket_type_id, stt.code, st.status, st.requester_user_id, st.requester_name,
	st.requester_email, st.subject, st.message, st.source, st.screen, st.url, st.metadata,
	st.telegram_alert_status, st.telegram_alert_attempts, st.created_at, st.updated_at`

const ticketFrom = `support_tickets st JOIN support_ticket_types stt ON stt.id = st.support_ticket_type_id`

func scanTicket(row interface{ Scan(...interface{}) error }) (*models.SupportTicket, error) {
	t := &models.SupportTicket{}
	var metadata []byte
	err := row.Scan(
		&t.ID, &t.TypeID, &t.TypeCode, &t.Status, &t.RequesterUserID, &t.RequesterName,
		&t.RequesterEmail, &t.Subject, &t.Message, &t.Source, &t.Screen, &t.URL, &metadata,
		&t.TelegramAlertStatus, &t.TelegramAlertAttempts, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		t.Metadata = metadata
	}
	return t, nil
}

func (r *SupportTicketRepository) ListTypes(ctx context.Context, locale string) ([]models.SupportTicketType, error) {
	query := `
		SELECT stt.id, stt.code, COALESCE(t.title, stt.code), t.description, stt.is_active
		FROM support_ticket_types stt
		LEFT JOIN support_ticket_type_translations t ON t.support_ticket_type_id = stt.id AND t.locale = $1
		WHERE stt.is_active = TRUE
		ORDER BY stt.id ASC`
	rows, err := r.db.QueryContext(ctx, query, locale)
	if err != nil {
		return nil, fmt.Errorf("list support ticket types: %w", err)
	}
	defer rows.Close()

	types := []models.SupportTicketType{}
	for rows.Next() {
		var st models.SupportTicketType
		if err := rows.Scan(&st.ID, &st.Code, &st.Title, &st.Description, &st.IsActive); err != nil {
			return nil, fmt.Errorf("scan support ticket type: %w", err)
		}
		types = append(types, st)
	}
	return types, rows.Err()
}

// CreateTicket writes the ticket (status new, alert pending) and its initial history row.
// ErrNotFound means the type code is unknown or inactive.
func (r *SupportTicketRepository) CreateTicket(ctx context.Context, t *models.SupportTicket) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM support_ticket_types WHERE code = $1 AND is_active = TRUE`, t.TypeCode,
		).Scan(&t.TypeID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup support ticket type: %w", err)
		}

		var metadata interface{}
		if len(t.Metadata) > 0 {
			metadata = []byte(t.Metadata)
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO support_tickets (
				support_ticket_type_id, status, requester_user_id, requester_name, requester_email,
				subject, message, source, screen, url, metadata, telegram_alert_status, telegram_alert_attempts
			)
			VALUES ($1, 'new', $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', 0)
			RETURNING id, status, telegram_alert_status, telegram_alert_attempts, created_at, updated_at`,
			t.TypeID, t.RequesterUserID, t.RequesterName, t.RequesterEmail,
			t.Subject, t.Message, t.Source, t.Screen, t.URL, metadata,
		).Scan(&t.ID, &t.Status, &t.TelegramAlertStatus, &t.TelegramAlertAttempts, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert support ticket: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO support_ticket_status_history (support_ticket_id, from_status, to_status)
			VALUES ($1, NULL, $2)`,
			t.ID, t.Status,
		)
		if err != nil {
			return fmt.Errorf("insert support ticket history: %w", err)
		}
		return nil
	})
}

// ListTickets returns one page of tickets, newest first, plus the total match count.
func (r *SupportTicketRepository) ListTickets(ctx context.Context, f models.TicketListFilter) ([]models.SupportTicket, int, error) {
	where := psql.Select().From(ticketFrom)
	if f.Type != "" {
		where = where.Where("stt.code = ?", f.Type)
	}
	if f.Status != "" {
		where = where.Where("st.status = ?", f.Status)
	}
	if f.DateFrom != nil {
		where = where.Where("st.created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		where = where.Where("st.created_at <= ?", *f.DateTo)
	}
	if f.RequesterUserID != nil {
		where = where.Where("st.requester_user_id = ?", *f.RequesterUserID)
	}

	countSQL, countArgs, err := where.Column("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build ticket count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count support tickets: %w", err)
	}

	listSQL, listArgs, err := where.Column(ticketColumns).
		OrderBy("st.created_at DESC", "st.id DESC").
		Limit(uint64(f.PageSize)).
		Offset(uint64((f.Page - 1) * f.PageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build ticket list query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list support tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.SupportTicket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan support ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, total, rows.Err()
}

func (r *SupportTicketRepository) GetTicket(ctx context.Context, id int64) (*models.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ` + ticketFrom + ` WHERE st.id = $1`
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get support ticket: %w", err)
	}
	return t, nil
}

func (r *SupportTicketRepository) ListHistory(ctx context.Context, ticketID int64) ([]models.SupportTicketStatusHistory, error) {
	query := `
		SELECT id, support_ticket_id, from_status, to_status, changed_by_admin_user_id, admin_comment, created_at
		FROM support_ticket_status_history
		WHERE support_ticket_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list support ticket history: %w", err)
	}
	defer rows.Close()

	history := []models.SupportTicketStatusHistory{}
	for rows.Next() {
		var h models.SupportTicketStatusHistory
		if err := rows.Scan(&h.ID, &h.TicketID, &h.FromStatus, &h.ToStatus, &h.ChangedByAdminUserID, &h.AdminComment, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan support ticket history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// UpdateStatus locks the ticket row, sets the new status and appends a history entry.
func (r *SupportTicketRepository) UpdateStatus(ctx context.Context, id, adminID int64, to string, comment *string) (*models.SupportTicket, error) {
	var updated *models.SupportTicket
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var from string
		err := tx.QueryRowContext(ctx, `SELECT status FROM support_tickets WHERE id = $1 FOR UPDATE`, id).Scan(&from)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock support ticket: %w", err)
		}

		updated = &models.SupportTicket{ID: id}
		err = tx.QueryRowContext(ctx,
			`UPDATE support_tickets SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING status, updated_at`,
			to, id,
		).Scan(&updated.Status, &updated.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update support ticket status: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO support_ticket_status_history (support_ticket_id, from_status, to_status, changed_by_admin_user_id, admin_comment)
			VALUES ($1, $2, $3, $4, $5)`,
			id, from, to, adminID, comment,
		)
		if err != nil {
			return fmt.Errorf("insert support ticket history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordAlertAttempt stores the outcome of one Telegram delivery try.
func (r *SupportTicketRepository) RecordAlertAttempt(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE support_tickets
		SET telegram_alert_status = $1, telegram_alert_attempts = telegram_alert_attempts + 1
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("record ticket alert attempt: %w", err)
	}
	return nil
}

// ListFailedAlerts returns tickets still in status new whose alert failed fewer than
// maxAttempts times. Alerts stuck in pending for 10 minutes (enqueue lost) are included.
func (r *SupportTicketRepository) ListFailedAlerts(ctx context.Context, maxAttempts, limit int) ([]models.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ` + ticketFrom + `
		WHERE (st.telegram_alert_status = 'failed'
				OR (st.telegram_alert_status = 'pending' AND st.created_at < NOW() - INTERVAL '10 minutes'))
			AND st.telegram_alert_attempts < $1
			AND st.status = 'new'
		ORDER BY st.created_at ASC, st.id ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed ticket alerts: %w", err)
	}
	defer rows.Close()

	tickets := []models.SupportTicket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan support ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}
