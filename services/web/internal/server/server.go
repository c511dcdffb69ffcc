package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookhub/internal/ratelimit"
	"bookhub/internal/util"
	"bookhub/pkg/domain"
	"bookhub/services/web/internal/apiclient"
	"bookhub/services/web/internal/app"
	"bookhub/services/web/internal/readmodel"
	"bookhub/services/web/internal/session"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	Sessions                   session.Provider
	RedisAddr                  string
	RedisPassword              string
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	TrustedProxies             *util.TrustedProxies
	CORSAllowedOrigins         []string
}

// Server exposes the page endpoints of the web tier as JSON.
type Server struct {
	app             *app.App
	sessions        session.Provider
	mux             *http.ServeMux
	trusted         *util.TrustedProxies
	corsOrigins     []string
	loginLimiter    ratelimit.Limiter
	registerLimiter ratelimit.Limiter
}

// New constructs the server with routes configured. A zero rate limit
// disables limiting for that endpoint. Limits are shared through Redis when
// RedisAddr is set and kept per process otherwise.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session provider required")
	}
	newLimiter := func(name string, limit int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			return nil, nil
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			limiter, err := ratelimit.NewLocalLimiter(limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		prefix := "bookhub:web:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	registerLimiter, err := newLimiter("register", cfg.RegisterRateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		sessions:        cfg.Sessions,
		mux:             http.NewServeMux(),
		trusted:         cfg.TrustedProxies,
		corsOrigins:     cfg.CORSAllowedOrigins,
		loginLimiter:    loginLimiter,
		registerLimiter: registerLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("web",
			util.WithRecover(
				util.WithSecurityHeaders(
					util.WithCORS(s.corsOrigins, s.mux)))))
}

// Close releases the rate limiters.
func (s *Server) Close() error {
	var errs []error
	for _, limiter := range []ratelimit.Limiter{s.loginLimiter, s.registerLimiter} {
		if limiter != nil {
			errs = append(errs, limiter.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// session
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/register", s.handleRegister)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/api/me", s.handleMe)

	// reader pages
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)

	// admin pages
	s.mux.HandleFunc("/api/admin/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/api/admin/books", s.handleAdminBooks)
	s.mux.HandleFunc("/api/admin/books/", s.handleAdminBookByID)
	s.mux.HandleFunc("/api/admin/reviews", s.handleAdminReviews)
	s.mux.HandleFunc("/api/admin/reviews/", s.handleAdminReviewByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userView is the session as shown to the browser. The backend token stays
// on the server.
type userView struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

func newUserView(sess domain.Session) userView {
	return userView{ID: sess.UserID, Name: sess.Name, Email: sess.Email, IsAdmin: sess.IsAdmin}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "web.login", "rate_limited")
		return
	}
	var form app.LoginForm
	if !decodeJSON(w, r, &form) {
		return
	}
	sess, err := s.app.Login(r.Context(), s.sessions.Holder(w, r), form)
	if err != nil {
		s.audit(r, "web.login", "fail", "email", strings.TrimSpace(form.Email))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.login", "success", "user_id", sess.UserID, "admin", sess.IsAdmin)
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(sess)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		s.audit(r, "web.register", "rate_limited")
		return
	}
	var form app.RegisterForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if err := s.app.Register(r.Context(), form); err != nil {
		s.audit(r, "web.register", "fail")
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.register", "success")
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Logout(r.Context(), s.sessions.Holder(w, r)); err != nil {
		util.LoggerFromContext(r.Context()).Error("clear session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.audit(r, "web.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess, err := s.app.CurrentUser(r.Context(), s.sessions.Holder(w, r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(sess))
}

// /api/books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.Catalog(r.Context(), s.sessions.Holder(w, r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

// /api/books/{id} or /api/books/{id}/reviews
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := pathID(r.URL.Path, "/api/books/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodGet:
		page, err := s.app.BookPage(r.Context(), s.sessions.Holder(w, r), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case rest == "reviews" && r.Method == http.MethodPost:
		s.handleSubmitReview(w, r, id)
	case rest == "" || rest == "reviews":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

// submitReviewResponse carries the refreshed book page. ContentOverSoftLimit
// flags a review longer than the suggested maximum; it is accepted anyway.
type submitReviewResponse struct {
	Page                 *app.BookPage `json:"page,omitempty"`
	ContentOverSoftLimit bool          `json:"contentOverSoftLimit"`
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request, bookID int) {
	var form app.ReviewForm
	if !decodeJSON(w, r, &form) {
		return
	}
	ctx := r.Context()
	h := s.sessions.Holder(w, r)
	if _, err := s.app.CurrentUser(ctx, h); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := form.Validate(); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	snap, err := s.app.SubmitReview(ctx, h, s.app.LoadBookSnapshot(ctx, bookID), bookID, form)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := submitReviewResponse{ContentOverSoftLimit: form.OverSoftLimit()}
	if page, err := app.BuildBookPage(snap, bookID); err == nil {
		resp.Page = &page
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, err := s.app.AdminDashboard(r.Context(), s.sessions.Holder(w, r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// /api/admin/books
func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request) {
	h := s.sessions.Holder(w, r)
	switch r.Method {
	case http.MethodGet:
		page, err := s.app.ManageBooks(r.Context(), h, r.URL.Query().Get("q"))
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var form app.BookForm
		if !decodeJSON(w, r, &form) {
			return
		}
		book, err := s.app.AddBook(r.Context(), h, form)
		if err != nil {
			s.auditAdmin(r, "web.admin.book.add", err, "title", strings.TrimSpace(form.Title))
			s.writeAppError(w, r, err)
			return
		}
		s.auditAdmin(r, "web.admin.book.add", nil, "title", book.Title)
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

// /api/admin/books/{id}
func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := pathID(r.URL.Path, "/api/admin/books/")
	if !ok || rest != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	ctx := r.Context()
	h := s.sessions.Holder(w, r)
	sess, err := s.app.RequireAdmin(ctx, h)
	if err != nil {
		s.auditAdmin(r, "web.admin.book.delete", err, "book_id", id)
		s.writeAppError(w, r, err)
		return
	}
	snap, err := s.app.DeleteBook(ctx, h, s.app.LoadAdminSnapshot(ctx, sess), id)
	s.auditAdmin(r, "web.admin.book.delete", err, "book_id", id, "user_id", sess.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.BuildManageBooks(snap, r.URL.Query().Get("q")))
}

// /api/admin/reviews
func (s *Server) handleAdminReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	h := s.sessions.Holder(w, r)
	if _, err := s.app.RequireAdmin(r.Context(), h); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	filter, err := parseReviewFilter(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	page, err := s.app.ModerateReviews(r.Context(), h, filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// /api/admin/reviews/{id}
func (s *Server) handleAdminReviewByID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := pathID(r.URL.Path, "/api/admin/reviews/")
	if !ok || rest != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	ctx := r.Context()
	h := s.sessions.Holder(w, r)
	sess, err := s.app.RequireAdmin(ctx, h)
	if err != nil {
		s.auditAdmin(r, "web.admin.review.delete", err, "review_id", id)
		s.writeAppError(w, r, err)
		return
	}
	filter, err := parseReviewFilter(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	snap, err := s.app.DeleteReview(ctx, h, s.app.LoadAdminSnapshot(ctx, sess), id)
	s.auditAdmin(r, "web.admin.review.delete", err, "review_id", id, "user_id", sess.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.BuildModeration(snap, filter))
}

// parseReviewFilter reads ?q=&book=&sort=. book is "all", empty or a book id.
func parseReviewFilter(r *http.Request) (readmodel.ReviewFilter, error) {
	q := r.URL.Query()
	filter := readmodel.ReviewFilter{
		Search: q.Get("q"),
		BookID: readmodel.AllBooks,
		Sort:   readmodel.ParseSortKey(q.Get("sort")),
	}
	if raw := strings.TrimSpace(q.Get("book")); raw != "" && raw != "all" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return filter, &app.ValidationError{Fields: map[string]string{"book": `must be "all" or a book id`}}
		}
		filter.BookID = id
	}
	return filter, nil
}

// pathID splits "/prefix/{id}/rest" into the numeric id and the remainder.
func pathID(path, prefix string) (int, string, bool) {
	parts := strings.SplitN(strings.TrimPrefix(path, prefix), "/", 2)
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if len(parts) == 2 {
		return id, strings.TrimSuffix(parts[1], "/"), true
	}
	return id, "", true
}

// decodeJSON reads a JSON request body. Only application/json is accepted,
// which keeps cross-site form posts from reaching cookie-authenticated
// handlers.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *app.ValidationError
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid input",
			"fields": validation.Fields,
		})
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, apiclient.ErrLogin):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) auditAdmin(r *http.Request, event string, err error, attrs ...any) {
	switch {
	case err == nil:
		s.audit(r, event, "success", attrs...)
	case errors.Is(err, app.ErrUnauthenticated), errors.Is(err, app.ErrForbidden):
		s.audit(r, event, "denied", attrs...)
	default:
		s.audit(r, event, "fail", append(attrs, "err", err.Error())...)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	if limiter.Allow(r.Context(), util.ClientIP(r, s.trusted)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
