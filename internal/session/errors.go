package session

import "errors"

var (
	ErrExpiredToken = errors.New("session: token expired")
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrRevokedToken el jti del refresh token no está registrado o fue revocado.
	ErrRevokedToken = errors.New("session: token revoked")
)
