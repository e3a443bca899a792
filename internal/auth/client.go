package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	BrowserCookie = "hs_browser"
	SessionCookie = "hs_session"

	browserCookieMaxAge = 365 * 24 * time.Hour
)

// Cookies carries the two client identities: a long-lived browser id that
// scopes local-storage style state, and a per-session id.
type Cookies struct {
	Secure bool
}

// BrowserID returns the caller's browser id, minting and setting one if the
// cookie is missing or malformed.
func (c Cookies) BrowserID(w http.ResponseWriter, r *http.Request) string {
	if id := cookieUUID(r, BrowserCookie); id != "" {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, c.cookie(BrowserCookie, id, int(browserCookieMaxAge/time.Second)))
	return id
}

func (c Cookies) SetSession(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, c.cookie(SessionCookie, sessionID, 0))
}

func (c Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(SessionCookie, "", -1))
}

// SessionID reads the session cookie; it returns "" when absent or malformed.
func SessionID(r *http.Request) string {
	return cookieUUID(r, SessionCookie)
}

func (c Cookies) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieUUID(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}
