package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLogin          AuditAction = "login"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionLoginAndUpdate AuditAction = "login_and_update"
	AuditActionLogout         AuditAction = "logout"
	AuditActionShadowUser     AuditAction = "shadow_user"
	AuditActionUserCreated    AuditAction = "user_created"
	AuditActionUserDeleted    AuditAction = "user_deleted"
	AuditActionRoleGranted    AuditAction = "role_granted"
	AuditActionRoleRevoked    AuditAction = "role_revoked"
	AuditActionListedAllUsers AuditAction = "listed_all_users"
)

// AuditLog represents an audit trail entry. Actor and target are plain
// ids so history survives account deletion.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ActorUserID  *uuid.UUID      `json:"actor_user_id,omitempty" db:"actor_user_id"`
	TargetUserID *uuid.UUID      `json:"target_user_id,omitempty" db:"target_user_id"`
	Action       AuditAction     `json:"action" db:"action"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// WithActor sets the acting user
func (a *AuditLog) WithActor(userID uuid.UUID) *AuditLog {
	a.ActorUserID = &userID
	return a
}

// WithTarget sets the user acted upon
func (a *AuditLog) WithTarget(userID uuid.UUID) *AuditLog {
	a.TargetUserID = &userID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
