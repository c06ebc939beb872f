package auth

import (
	"fmt"

	"github.com/reusedev/gen-hub/config"
)

// Validator resolves a bearer token to a user id. The platform's
// authentication subsystem is consumed as an opaque capability; this
// service only needs token -> user resolution.
type Validator interface {
	Validate(token string) (string, error)
}

// StaticValidator resolves tokens from configuration.
type StaticValidator struct {
	tokens map[string]string
}

func NewStaticValidator(cfg config.Auth) *StaticValidator {
	return &StaticValidator{tokens: cfg.Tokens}
}

func (v *StaticValidator) Validate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing token")
	}
	userId, ok := v.tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return userId, nil
}
