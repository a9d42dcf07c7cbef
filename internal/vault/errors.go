package vault

import "errors"

var (
	// ErrNotFound no hay credencial para (platform, merchantID).
	ErrNotFound = errors.New("vault: credential not found")
	// ErrRefreshFailed el refresh inline falló o excedió el timeout.
	ErrRefreshFailed = errors.New("vault: refresh failed")
)
