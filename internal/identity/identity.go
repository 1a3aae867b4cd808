// Package identity resolves a best-effort user identity from an inbound request.
//
// Identity is resolved once at WebSocket connect time and cached on the
// connection record. A missing or invalid token is not an error: the
// connection proceeds as anonymous and the registry falls back to the
// connection id for addressing.
package identity

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousName is the display name used when no name claim is present.
const AnonymousName = "Anonymous"

// Identity is the resolved (best-effort) identity of a connecting client.
// Zero values mean "unknown"; callers apply their own fallbacks.
type Identity struct {
	UserID   string
	UserName string
}

// claims carries the subject and display-name claims we read at connect time.
type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Resolver parses bearer tokens into identities.
type Resolver struct {
	signingKey []byte
}

// NewResolver creates a resolver. An empty secret disables verification,
// so every connection resolves as anonymous.
func NewResolver(secret string) *Resolver {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Resolver{signingKey: key}
}

// FromRequest resolves the identity on an inbound upgrade request.
// The token is taken from the Authorization header or, the way browser
// WebSocket clients pass it, from the access_token query parameter.
func (r *Resolver) FromRequest(req *http.Request) Identity {
	if r.signingKey == nil {
		return Identity{}
	}

	tokenString := bearerToken(req)
	if tokenString == "" {
		return Identity{}
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return Identity{}
	}

	return Identity{
		UserID:   c.Subject,
		UserName: c.Name,
	}
}

func bearerToken(req *http.Request) string {
	if auth := req.Header.Get("Authorization"); auth != "" {
		if after, found := strings.CutPrefix(auth, "Bearer "); found {
			return after
		}
		return ""
	}
	return req.URL.Query().Get("access_token")
}
