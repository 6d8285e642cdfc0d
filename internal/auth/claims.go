package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Name and Email are carried so audit entries and notifications can be
// attributed without a directory lookup per request.
type Claims struct {
	jwt.RegisteredClaims

	UserID    int64     `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID int64
	Name   string
	Email  string
	Role   string
}
