// Package auth guards the admin action routes with a shared token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// HeaderToken is accepted alongside "Authorization: Bearer <token>".
const HeaderToken = "X-Peersync-Token"

type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FromRequest extracts the presented token, preferring the bearer header.
func FromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderToken))
}

// Check validates the token carried by r.
func Check(v Validator, r *http.Request) error {
	token := FromRequest(r)
	if token == "" {
		return ErrUnauthorized
	}
	return v.Validate(token)
}
