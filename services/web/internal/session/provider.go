package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultCookieName = "bookhub_sid"

// CookieOptions controls the browser cookie that identifies a session.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (o CookieOptions) normalized() CookieOptions {
	if strings.TrimSpace(o.Name) == "" {
		o.Name = DefaultCookieName
	}
	return o
}

func (o CookieOptions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// KeyedProvider identifies browsers by a random id cookie and keeps their
// sessions in a Backend. The id cookie is only issued when a session is
// stored, and a new id is minted on every store.
type KeyedProvider struct {
	backend Backend
	cookie  CookieOptions
}

// NewKeyedProvider builds a provider over backend.
func NewKeyedProvider(backend Backend, opts CookieOptions) *KeyedProvider {
	return &KeyedProvider{backend: backend, cookie: opts.normalized()}
}

// Holder returns the holder for the requesting browser. Cookies that do not
// carry a well-formed id read as anonymous.
func (p *KeyedProvider) Holder(w http.ResponseWriter, r *http.Request) Holder {
	sid := ""
	if c, err := r.Cookie(p.cookie.Name); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			sid = c.Value
		}
	}
	return &keyedHolder{
		backend: p.backend,
		sid:     sid,
		issue: func(sid string) {
			http.SetCookie(w, p.cookie.cookie(sid, int(p.cookie.MaxAge.Seconds())))
		},
		expire: func() {
			http.SetCookie(w, p.cookie.cookie("", -1))
		},
	}
}
