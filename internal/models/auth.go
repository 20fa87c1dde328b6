package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole is the staff role carried in access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleBursar     UserRole = "BURSAR"
)

// JWTClaims represents the JWT payload of access tokens issued by the
// identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
