package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookhub/pkg/domain"
)

var ann = domain.Session{Token: "tok-ann", UserID: 1, Name: "Ann", Email: "ann@example.com", IsAdmin: true}

func exerciseHolder(t *testing.T, h Holder) {
	t.Helper()
	ctx := context.Background()
	if _, ok := h.Load(ctx); ok {
		t.Fatalf("fresh holder should be anonymous")
	}
	if err := h.Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok := h.Load(ctx)
	if !ok || got != ann {
		t.Fatalf("unexpected session %+v ok=%v", got, ok)
	}
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := h.Load(ctx); ok {
		t.Fatalf("cleared holder should be anonymous")
	}
}

func TestMemoryHolderLifecycle(t *testing.T) {
	exerciseHolder(t, NewHolder(NewMemoryBackend(0), "browser-1"))
}

func TestMemoryHoldersAreIsolated(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()
	if err := NewHolder(backend, "a").Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := NewHolder(backend, "b").Load(ctx); ok {
		t.Fatalf("session leaked across browsers")
	}
}

func TestMemoryBackendExpires(t *testing.T) {
	backend := NewMemoryBackend(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	h := NewHolder(backend, "a")
	if err := h.Store(context.Background(), ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := h.Load(context.Background()); ok {
		t.Fatalf("expired session should read as absent")
	}
}

func TestMemoryBackendSweepsExpiredOnPut(t *testing.T) {
	backend := NewMemoryBackend(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	ctx := context.Background()
	for _, sid := range []string{"a", "b"} {
		if err := backend.Put(ctx, sid, []byte("{}")); err != nil {
			t.Fatalf("put %s: %v", sid, err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := backend.Put(ctx, "c", []byte("{}")); err != nil {
		t.Fatalf("put c: %v", err)
	}
	if len(backend.entries) != 1 {
		t.Fatalf("expired entries kept: %d left", len(backend.entries))
	}
}

func TestMalformedStateReadsAsAbsent(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()
	for _, raw := range []string{"{not json", `{"name":"no token"}`, `[]`, ``} {
		if err := backend.Put(ctx, "a", []byte(raw)); err != nil {
			t.Fatalf("put: %v", err)
		}
		if s, ok := NewHolder(backend, "a").Load(ctx); ok {
			t.Fatalf("malformed state %q loaded as %+v", raw, s)
		}
	}
}

func TestRedisHolderLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	backend := NewRedisBackend(mr.Addr(), "", "test:session", time.Hour)
	t.Cleanup(func() { _ = backend.Close() })
	exerciseHolder(t, NewHolder(backend, "browser-1"))
}

func TestRedisHolderTTLAndMalformedState(t *testing.T) {
	mr := miniredis.RunT(t)
	backend := NewRedisBackend(mr.Addr(), "", "test:session", time.Minute)
	t.Cleanup(func() { _ = backend.Close() })
	ctx := context.Background()
	h := NewHolder(backend, "b1")
	if err := h.Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	if ttl := mr.TTL("test:session:b1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok := h.Load(ctx); ok {
		t.Fatalf("expired redis session should be absent")
	}

	if err := mr.Set("test:session:b2", "garbage"); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	if _, ok := NewHolder(backend, "b2").Load(ctx); ok {
		t.Fatalf("garbage should read as absent")
	}
}

func TestRedisUnavailableReadsAsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	backend := NewRedisBackend(mr.Addr(), "", "test:session", time.Minute)
	t.Cleanup(func() { _ = backend.Close() })
	mr.Close()
	h := NewHolder(backend, "b1")
	if _, ok := h.Load(context.Background()); ok {
		t.Fatalf("unreachable redis should read as absent")
	}
	if err := h.Store(context.Background(), ann); err == nil {
		t.Fatalf("store against closed redis should fail")
	}
}

func TestKeyedProviderIssuesAndReusesBrowserID(t *testing.T) {
	p := NewKeyedProvider(NewMemoryBackend(0), CookieOptions{})
	ctx := context.Background()

	rec := httptest.NewRecorder()
	h := p.Holder(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err := h.Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected browser id cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	got, ok := p.Holder(rec2, req).Load(ctx)
	if !ok || got != ann {
		t.Fatalf("expected stored session, got %+v ok=%v", got, ok)
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Fatalf("known browser should not get a new cookie")
	}

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "../../etc"})
	if _, ok := p.Holder(httptest.NewRecorder(), forged).Load(ctx); ok {
		t.Fatalf("invalid browser id should be anonymous")
	}
}

func TestKeyedProviderRotatesBrowserIDOnStore(t *testing.T) {
	backend := NewMemoryBackend(0)
	p := NewKeyedProvider(backend, CookieOptions{})
	ctx := context.Background()

	planted := &http.Cookie{Name: DefaultCookieName, Value: "0b6c2f9e-4d1a-4c8e-9f3b-5a2d8e1c7a11"}
	if err := backend.Put(ctx, planted.Value, []byte(`{"token":"stale","name":"Old"}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	victim := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	victim.AddCookie(planted)
	rec := httptest.NewRecorder()
	if err := p.Holder(rec, victim).Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	issued := rec.Result().Cookies()
	if len(issued) != 1 || issued[0].Value == planted.Value || issued[0].Value == "" {
		t.Fatalf("login must issue a fresh browser id, got %+v", issued)
	}

	attacker := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	attacker.AddCookie(planted)
	if got, ok := p.Holder(httptest.NewRecorder(), attacker).Load(ctx); ok {
		t.Fatalf("planted browser id reads session %+v", got)
	}
	if _, ok, _ := backend.Get(ctx, planted.Value); ok {
		t.Fatalf("previous browser id should be dropped")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(issued[0])
	if got, ok := p.Holder(httptest.NewRecorder(), req).Load(ctx); !ok || got != ann {
		t.Fatalf("fresh browser id should load the session, got %+v ok=%v", got, ok)
	}
}

func TestKeyedProviderClearExpiresCookie(t *testing.T) {
	p := NewKeyedProvider(NewMemoryBackend(0), CookieOptions{})
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if err := p.Holder(rec, httptest.NewRequest(http.MethodPost, "/", nil)).Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])

	clearRec := httptest.NewRecorder()
	if err := p.Holder(clearRec, req).Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c := clearRec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("expected expiring cookie, got %+v", c)
	}
	if _, ok := p.Holder(httptest.NewRecorder(), req).Load(ctx); ok {
		t.Fatalf("cleared session still loads")
	}
}

func TestCookieProviderRoundTrip(t *testing.T) {
	secret := strings.Repeat("s", 32)
	p, err := NewCookieProvider(secret, time.Hour, CookieOptions{Name: "sess"})
	if err != nil {
		t.Fatalf("new cookie provider: %v", err)
	}
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if err := p.Holder(rec, httptest.NewRequest(http.MethodGet, "/", nil)).Store(ctx, ann); err != nil {
		t.Fatalf("store: %v", err)
	}
	sealed := rec.Result().Cookies()
	if len(sealed) != 1 || sealed[0].Name != "sess" {
		t.Fatalf("expected sealed cookie, got %+v", sealed)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sealed[0])
	got, ok := p.Holder(httptest.NewRecorder(), req).Load(ctx)
	if !ok || got != ann {
		t.Fatalf("unexpected session %+v ok=%v", got, ok)
	}

	clearRec := httptest.NewRecorder()
	if err := p.Holder(clearRec, req).Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c := clearRec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("expected expiring cookie, got %+v", c)
	}
}

func TestCookieProviderRejectsTamperedAndExpired(t *testing.T) {
	p, err := NewCookieProvider(strings.Repeat("k", 32), time.Minute, CookieOptions{})
	if err != nil {
		t.Fatalf("new cookie provider: %v", err)
	}
	other, _ := NewCookieProvider(strings.Repeat("x", 32), time.Minute, CookieOptions{})
	foreign, err := other.seal(ann)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	now := time.Now()
	p.now = func() time.Time { return now }
	valid, err := p.seal(ann)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	load := func(value string) bool {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: value})
		_, ok := p.Holder(httptest.NewRecorder(), req).Load(context.Background())
		return ok
	}
	if !load(valid) {
		t.Fatalf("valid cookie should load")
	}
	if load(foreign) {
		t.Fatalf("cookie signed with another secret must be rejected")
	}
	if load("not-a-jwt") {
		t.Fatalf("garbage cookie must be rejected")
	}
	now = now.Add(2 * time.Minute)
	if load(valid) {
		t.Fatalf("expired cookie must be rejected")
	}
}

func TestCookieProviderRequiresLongSecret(t *testing.T) {
	if _, err := NewCookieProvider("short", time.Hour, CookieOptions{}); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
