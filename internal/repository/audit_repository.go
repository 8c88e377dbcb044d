package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

// AuditRepository persists the activity log.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog appends an audit record.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit records matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	base := "FROM audit_logs WHERE 1=1"
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		base += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		base += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		base += fmt.Sprintf(" AND resource = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		base += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		base += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}
