package proxy

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

type ClaimsWithGroups struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups"`
}

// subject returns the subject of a verified bearer token. Requests without a
// token, or any request when no JWKS is configured, are anonymous.
func (s *Server) subject(r *http.Request) (string, error) {
	if s.jwks == nil {
		return "", nil
	}

	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", nil
	}

	claims := &ClaimsWithGroups{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, s.jwks.Keyfunc)
	if err != nil {
		return "", errors.Wrap(err, "parse bearer token")
	}
	if !token.Valid {
		return "", errors.New("bearer token is not valid")
	}
	return claims.Subject, nil
}
