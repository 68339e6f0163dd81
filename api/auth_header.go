package api

import (
	"strings"
)

var (
	errMissingAuthorization = authError{"missing authorization header"}
	errBadAuthorization     = authError{"bad auth header"}
)

// authError marks failures that must map to 401 regardless of where in the
// verification chain they surface.
type authError struct {
	msg string
}

func (e authError) Error() string { return e.msg }

const bearerPrefix = "Bearer "

// bearerTokenFromHeader extracts the compact JWS from an Authorization header
// value. The token must carry the Bearer prefix and have exactly three
// dot-separated segments; anything else is rejected before signature checks.
func bearerTokenFromHeader(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.EqualFold(trimmed[:len(bearerPrefix)], bearerPrefix) {
		return "", errBadAuthorization
	}
	token := trimmed[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
