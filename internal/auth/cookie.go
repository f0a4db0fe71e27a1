package auth

import (
	"net/http"
	"time"

	"github.com/mikepodsy/my-finance-app/internal/clock"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "auth_token"

// CookieWriter attaches session tokens to HTTP responses.
type CookieWriter struct {
	secure bool
	clock  clock.Clock
}

// NewCookieWriter returns a CookieWriter. secure sets the Secure attribute and
// should be true whenever the client reaches us over TLS.
func NewCookieWriter(secure bool, clk clock.Clock) *CookieWriter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &CookieWriter{secure: secure, clock: clk}
}

// Secure reports whether written cookies carry the Secure attribute.
func (c *CookieWriter) Secure() bool {
	return c.secure
}

// Write sets the session cookie. Max-Age is the token's remaining lifetime,
// so a freshly issued token yields 604800. Now is truncated to the second
// like the token's iat, otherwise sub-second offsets would cost a second.
func (c *CookieWriter) Write(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(c.clock.Now().Truncate(time.Second)) / time.Second)
	if maxAge <= 0 {
		c.Clear(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear instructs the client to drop the session cookie.
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the session token from the request, or "" when absent.
func (c *CookieWriter) Read(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
