package jwttoken

import (
	authmw "veritas/pkg/platform/middleware/auth"
)

// JWTServiceAdapter satisfies the auth middleware's validator port.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	caller, err := claims.Caller()
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{Caller: caller, JTI: claims.ID}, nil
}
