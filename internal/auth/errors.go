package auth

import "errors"

// Token errors. Use errors.Is() to check for these in calling code.
var (
	ErrTokenMissing = errors.New("auth: token is empty")
	ErrTokenInvalid = errors.New("auth: invalid token")
)
