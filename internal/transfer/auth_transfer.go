package transfer

import "github.com/golang-jwt/jwt/v5"

type AuthRequest struct {
	Password string `json:"password"`
}

type SessionClaims struct {
	jwt.RegisteredClaims
}
