package model

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userId,omitempty"`
	Action       string                 `json:"action"`
	ResourceType *string                `json:"resourceType,omitempty"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	IPAddress    *string                `json:"ipAddress,omitempty"`
	UserAgent    *string                `json:"userAgent,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// Audit action constants
const (
	AuditActionRegister             = "user.register"
	AuditActionLogin                = "user.login"
	AuditActionLoginFailed          = "user.login_failed"
	AuditActionLogout               = "user.logout"
	AuditActionPasswordChange       = "user.password_change"
	AuditActionPasswordResetRequest = "user.password_reset_request"
	AuditActionPasswordReset        = "user.password_reset"
	AuditActionProfileUpdate        = "user.profile_update"
	AuditActionEmailChange          = "user.email_change"
	AuditActionAccountDelete        = "user.account_delete"
)
