// Package session keeps the authenticated identity of each browser.
package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"bookhub/internal/util"
	"bookhub/pkg/domain"
)

// Holder stores the session of exactly one browser.
// Load never fails: unreadable or malformed state reads as absent.
type Holder interface {
	Load(ctx context.Context) (domain.Session, bool)
	Store(ctx context.Context, s domain.Session) error
	Clear(ctx context.Context) error
}

// Provider binds a Holder to the browser that sent r.
type Provider interface {
	Holder(w http.ResponseWriter, r *http.Request) Holder
}

// Backend persists encoded sessions by browser id.
type Backend interface {
	Get(ctx context.Context, sid string) ([]byte, bool, error)
	Put(ctx context.Context, sid string, data []byte) error
	Delete(ctx context.Context, sid string) error
}

// keyedHolder adapts a Backend entry to the Holder contract. When issue is
// set, every Store moves the session to a freshly minted id and hands the
// new id to issue; the id the browser arrived with is never authenticated.
type keyedHolder struct {
	backend Backend
	sid     string
	issue   func(sid string)
	expire  func()
}

// NewHolder returns a Holder for one fixed browser id of backend.
func NewHolder(backend Backend, sid string) Holder {
	return &keyedHolder{backend: backend, sid: sid}
}

func (h *keyedHolder) Load(ctx context.Context) (domain.Session, bool) {
	if h.sid == "" {
		return domain.Session{}, false
	}
	data, ok, err := h.backend.Get(ctx, h.sid)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("session load failed", "err", err)
		return domain.Session{}, false
	}
	if !ok {
		return domain.Session{}, false
	}
	return decode(ctx, data)
}

func (h *keyedHolder) Store(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if h.issue == nil {
		return h.backend.Put(ctx, h.sid, data)
	}
	sid := uuid.NewString()
	if err := h.backend.Put(ctx, sid, data); err != nil {
		return err
	}
	if h.sid != "" {
		if err := h.backend.Delete(ctx, h.sid); err != nil {
			util.LoggerFromContext(ctx).Warn("drop previous session failed", "err", err)
		}
	}
	h.sid = sid
	h.issue(sid)
	return nil
}

func (h *keyedHolder) Clear(ctx context.Context) error {
	if h.expire != nil {
		h.expire()
	}
	if h.sid == "" {
		return nil
	}
	return h.backend.Delete(ctx, h.sid)
}

func decode(ctx context.Context, data []byte) (domain.Session, bool) {
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		util.LoggerFromContext(ctx).Debug("discarding malformed session", "err", err)
		return domain.Session{}, false
	}
	if !s.Valid() {
		return domain.Session{}, false
	}
	return s, true
}
