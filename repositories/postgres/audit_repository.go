package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_user_id, target_user_id, action, details,
			ip_address, user_agent, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var details sql.NullString
	if len(log.Details) > 0 {
		details = sql.NullString{String: string(log.Details), Valid: true}
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		nullUUID(log.ActorUserID),
		nullUUID(log.TargetUserID),
		string(log.Action),
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListByActor returns entries recorded for an acting user, newest first
func (r *AuditRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, actor_user_id, target_user_id, action, details,
		       ip_address, user_agent, request_id, created_at
		FROM audit_logs
		WHERE actor_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var (
			log       models.AuditLog
			actor     uuid.NullUUID
			target    uuid.NullUUID
			details   sql.NullString
			ip        sql.NullString
			userAgent sql.NullString
			requestID sql.NullString
		)
		if err := rows.Scan(&log.ID, &actor, &target, &log.Action, &details,
			&ip, &userAgent, &requestID, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.ActorUserID = uuidPtr(actor)
		log.TargetUserID = uuidPtr(target)
		if details.Valid {
			log.Details = []byte(details.String)
		}
		log.IPAddress = ip.String
		log.UserAgent = userAgent.String
		log.RequestID = requestID.String
		log.CreatedAt = log.CreatedAt.UTC()
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}
	return logs, nil
}
