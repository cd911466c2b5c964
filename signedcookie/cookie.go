package signedcookie

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoCookie is returned by Read when the request lacks the cookie.
var ErrNoCookie = errors.New("cookie not present")

// Attributes are the cookie attributes shared by Set and Clear.
type Attributes struct {
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

func (a Attributes) cookie(name, value string) *http.Cookie {
	path := a.Path
	if path == "" {
		path = "/"
	}
	sameSite := a.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: sameSite,
	}
}

// Set writes value, signed for name, as an HttpOnly cookie living for
// attrs.MaxAge.
func (s *Signer) Set(w http.ResponseWriter, name, value string, attrs Attributes) {
	c := attrs.cookie(name, s.Sign(name, value, attrs.MaxAge))
	maxAge := attrs.MaxAge
	if maxAge <= 0 {
		maxAge = s.defaultExpiry
	}
	c.MaxAge = int(maxAge / time.Second)
	c.Expires = s.now().Add(maxAge)
	http.SetCookie(w, c)
}

// Read returns the verified value of the cookie called name.
func (s *Signer) Read(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", ErrNoCookie
	}
	return s.Verify(name, c.Value)
}

// Clear expires the cookie called name. attrs must match those used by Set
// for browsers to drop it.
func Clear(w http.ResponseWriter, name string, attrs Attributes) {
	c := attrs.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}
