package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookhub/internal/util"
	"bookhub/pkg/domain"
)

const cookieIssuer = "bookhub-web"

// CookieProvider seals the whole session into an HS256-signed cookie, so no
// server-side state is kept.
type CookieProvider struct {
	secret []byte
	ttl    time.Duration
	cookie CookieOptions
	now    func() time.Time
}

type sessionClaims struct {
	Session domain.Session `json:"session"`
	jwt.RegisteredClaims
}

// NewCookieProvider builds a signed-cookie provider. ttl bounds how long a
// sealed session stays readable.
func NewCookieProvider(secret string, ttl time.Duration, opts CookieOptions) (*CookieProvider, error) {
	if len(secret) < 32 {
		return nil, errors.New("session cookie secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	opts = opts.normalized()
	if opts.MaxAge <= 0 {
		opts.MaxAge = ttl
	}
	return &CookieProvider{secret: []byte(secret), ttl: ttl, cookie: opts, now: time.Now}, nil
}

func (p *CookieProvider) Holder(w http.ResponseWriter, r *http.Request) Holder {
	return &cookieHolder{provider: p, w: w, r: r}
}

func (p *CookieProvider) seal(s domain.Session) (string, error) {
	now := p.now().UTC()
	claims := sessionClaims{
		Session: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cookieIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *CookieProvider) open(raw string) (domain.Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return domain.Session{}, err
	}
	if !claims.Session.Valid() {
		return domain.Session{}, errors.New("session without token")
	}
	return claims.Session, nil
}

type cookieHolder struct {
	provider *CookieProvider
	w        http.ResponseWriter
	r        *http.Request
}

func (h *cookieHolder) Load(ctx context.Context) (domain.Session, bool) {
	c, err := h.r.Cookie(h.provider.cookie.Name)
	if err != nil || c.Value == "" {
		return domain.Session{}, false
	}
	s, err := h.provider.open(c.Value)
	if err != nil {
		util.LoggerFromContext(ctx).Debug("discarding unreadable session cookie", "err", err)
		return domain.Session{}, false
	}
	return s, true
}

func (h *cookieHolder) Store(_ context.Context, s domain.Session) error {
	raw, err := h.provider.seal(s)
	if err != nil {
		return err
	}
	http.SetCookie(h.w, h.provider.cookie.cookie(raw, int(h.provider.cookie.MaxAge.Seconds())))
	return nil
}

func (h *cookieHolder) Clear(_ context.Context) error {
	http.SetCookie(h.w, h.provider.cookie.cookie("", -1))
	return nil
}
