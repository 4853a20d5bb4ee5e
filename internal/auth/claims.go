package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeService TokenType = "service"

// Claims are the only supported JWT claims shape for this service.
// A single shared secret signs every token; Service names the caller class.
type Claims struct {
	jwt.RegisteredClaims

	Service   string    `json:"service"`
	TokenType TokenType `json:"token_type"`
}
