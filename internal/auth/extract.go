package auth

import (
	"net/http"
	"strings"
)

// CookieName is the session cookie the frontend sends on both REST
// requests and websocket handshakes.
const CookieName = "token"

// ExtractToken pulls a session token from a REST request: the
// Authorization bearer header first, then the session cookie. Returns
// an empty string when neither is present.
func ExtractToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// ExtractHandshakeToken pulls a session token from a websocket
// handshake request. Browsers cannot set headers on a handshake, so
// the cookie comes first, then the token query parameter, then the
// bearer header for non-browser clients. First match wins.
func ExtractHandshakeToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if token := strings.TrimSpace(c.Value); token != "" {
			return token
		}
	}
	if token := strings.TrimSpace(r.URL.Query().Get(CookieName)); token != "" {
		return token
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
