package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Capability names checked by the HTTP layer.
const (
	CapabilityManageOverrides = "mod/assign:manageoverrides"
	CapabilityManagePrivacy   = "tool/dataprivacy:manage"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	Email        string   `json:"email,omitempty"`
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// Has reports whether the claims grant the capability.
func (c *JWTClaims) Has(capability string) bool {
	if c == nil {
		return false
	}
	for _, granted := range c.Capabilities {
		if granted == capability {
			return true
		}
	}
	return false
}
