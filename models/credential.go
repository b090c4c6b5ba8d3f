package models

import (
	"time"
)

// OAuthCredential stores the tokens obtained from the tax authority for a
// (user, tenant) pair. At most one credential per pair is active; a new
// exchange or refresh deactivates the previous row instead of deleting it.
type OAuthCredential struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID       string    `json:"user_id" gorm:"not null;index:idx_credential_owner"`
	TenantID     string    `json:"tenant_id" gorm:"not null;index:idx_credential_owner"`
	AccessToken  string    `json:"-" gorm:"not null"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type" gorm:"default:'Bearer'"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	Active       bool      `json:"active" gorm:"not null;default:true;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *OAuthCredential) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}

// RemainingLifetime is negative once the token has expired.
func (c *OAuthCredential) RemainingLifetime() time.Duration {
	return time.Until(c.ExpiresAt)
}
