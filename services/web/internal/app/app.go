package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookhub/internal/util"
	"bookhub/pkg/domain"
	"bookhub/services/web/internal/apiclient"
	"bookhub/services/web/internal/readmodel"
	"bookhub/services/web/internal/session"
)

// Backend is the subset of the book-review API the pages use.
// *apiclient.Client implements it.
type Backend interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResult, error)
	Register(ctx context.Context, name, email, password string) error
	GetBooks(ctx context.Context) ([]domain.Book, error)
	GetReviews(ctx context.Context, bookID int) ([]domain.Review, error)
	SubmitReview(ctx context.Context, token string, bookID, rating int, content string) error
	AddBook(ctx context.Context, token string, book domain.NewBook) error
	DeleteBook(ctx context.Context, token string, bookID int) error
	ListAllReviews(ctx context.Context, token string) ([]domain.Review, error)
	DeleteReview(ctx context.Context, token string, reviewID int) error
}

// Config holds runtime dependencies for the page use cases.
type Config struct {
	API Backend
	Now func() time.Time
}

// App implements the page-level use cases on top of the backend client and
// the read model.
type App struct {
	api Backend
	now func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.API == nil {
		return nil, errors.New("backend client required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{api: cfg.API, now: cfg.Now}, nil
}

// Login authenticates against the backend and stores the session.
func (a *App) Login(ctx context.Context, h session.Holder, form LoginForm) (domain.Session, error) {
	if err := form.Validate(); err != nil {
		return domain.Session{}, err
	}
	res, err := a.api.Login(ctx, strings.TrimSpace(form.Email), form.Password)
	if err != nil {
		logBackendError(ctx, err)
		return domain.Session{}, err
	}
	sess := domain.NewSession(res.Token, res.User)
	if err := h.Store(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Register creates an account. The caller logs in separately.
func (a *App) Register(ctx context.Context, form RegisterForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	err := a.api.Register(ctx, strings.TrimSpace(form.Name), strings.TrimSpace(form.Email), form.Password)
	if err != nil {
		logBackendError(ctx, err)
		return err
	}
	return nil
}

// Logout forgets the browser's session.
func (a *App) Logout(ctx context.Context, h session.Holder) error {
	return h.Clear(ctx)
}

// CurrentUser returns the session or ErrUnauthenticated.
func (a *App) CurrentUser(ctx context.Context, h session.Holder) (domain.Session, error) {
	sess, ok := h.Load(ctx)
	if !ok {
		return domain.Session{}, ErrUnauthenticated
	}
	return sess, nil
}

// RequireAdmin returns the session when it belongs to an administrator.
// The backend still enforces the admin check on every admin call.
func (a *App) RequireAdmin(ctx context.Context, h session.Holder) (domain.Session, error) {
	sess, err := a.CurrentUser(ctx, h)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.IsAdmin {
		return domain.Session{}, ErrForbidden
	}
	return sess, nil
}

// Catalog lists all books for the user dashboard. A failed fetch shows an
// empty catalog.
func (a *App) Catalog(ctx context.Context, h session.Holder) ([]domain.Book, error) {
	if _, err := a.CurrentUser(ctx, h); err != nil {
		return nil, err
	}
	books, err := a.api.GetBooks(ctx)
	if err != nil {
		logBackendError(ctx, err)
		return []domain.Book{}, nil
	}
	return books, nil
}

// LoadBookSnapshot fetches the catalog and the reviews of one book
// concurrently. Each fetch degrades to empty on its own.
func (a *App) LoadBookSnapshot(ctx context.Context, bookID int) readmodel.Snapshot {
	return a.loadSnapshot(ctx, func(ctx context.Context) ([]domain.Review, error) {
		return a.api.GetReviews(ctx, bookID)
	})
}

// LoadAdminSnapshot fetches the catalog and every review concurrently.
func (a *App) LoadAdminSnapshot(ctx context.Context, sess domain.Session) readmodel.Snapshot {
	return a.loadSnapshot(ctx, func(ctx context.Context) ([]domain.Review, error) {
		return a.api.ListAllReviews(ctx, sess.Token)
	})
}

func (a *App) loadSnapshot(ctx context.Context, reviewsFn func(context.Context) ([]domain.Review, error)) readmodel.Snapshot {
	var (
		books               []domain.Book
		reviews             []domain.Review
		booksErr, reviewErr error
	)
	// Neither goroutine returns an error so one failure never cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		books, booksErr = a.api.GetBooks(ctx)
		return nil
	})
	g.Go(func() error {
		reviews, reviewErr = reviewsFn(ctx)
		return nil
	})
	_ = g.Wait()
	for _, err := range []error{booksErr, reviewErr} {
		if err != nil {
			logBackendError(ctx, err)
		}
	}
	return readmodel.FromFetch(books, booksErr, reviews, reviewErr)
}

// BookPage is the "reviews for one book" page. Book is nil when the
// catalog could not be loaded; the reviews and aggregate are still shown.
type BookPage struct {
	Book           *domain.Book            `json:"book"`
	Aggregate      readmodel.Aggregate     `json:"aggregate"`
	AverageDisplay string                  `json:"averageDisplay"`
	Reviews        []readmodel.ReviewEntry `json:"reviews"`
}

// BuildBookPage composes the page for bookID from a snapshot. A book
// missing from a loaded catalog is ErrBookNotFound; an empty catalog is
// treated as a failed fetch and the page is built without the book.
func BuildBookPage(s readmodel.Snapshot, bookID int) (BookPage, error) {
	var bookRef *domain.Book
	if book, ok := s.Book(bookID); ok {
		bookRef = &book
	} else if len(s.Books) > 0 {
		return BookPage{}, ErrBookNotFound
	}
	agg := readmodel.AggregateFor(s.Reviews, bookID)
	reviews := readmodel.FilterReviews(s.Reviews, readmodel.ReviewFilter{BookID: bookID, Sort: domain.SortNewest})
	return BookPage{
		Book:           bookRef,
		Aggregate:      agg,
		AverageDisplay: agg.Display(),
		Reviews:        readmodel.Annotate(s, reviews),
	}, nil
}

// BookPage loads and composes the page for one book.
func (a *App) BookPage(ctx context.Context, h session.Holder, bookID int) (BookPage, error) {
	if _, err := a.CurrentUser(ctx, h); err != nil {
		return BookPage{}, err
	}
	return BuildBookPage(a.LoadBookSnapshot(ctx, bookID), bookID)
}

// SubmitReview validates the form, posts it, and on success appends the
// review to the snapshot. On any failure the snapshot is returned unchanged.
func (a *App) SubmitReview(ctx context.Context, h session.Holder, s readmodel.Snapshot, bookID int, form ReviewForm) (readmodel.Snapshot, error) {
	sess, err := a.CurrentUser(ctx, h)
	if err != nil {
		return s, err
	}
	if err := form.Validate(); err != nil {
		return s, err
	}
	content := strings.TrimSpace(form.Content)
	if err := a.api.SubmitReview(ctx, sess.Token, bookID, form.Rating, content); err != nil {
		logBackendError(ctx, err)
		return s, err
	}
	return s.WithReview(domain.Review{
		BookID:    bookID,
		UserID:    sess.UserID,
		UserName:  sess.Name,
		Rating:    form.Rating,
		Content:   content,
		Timestamp: a.now().UTC(),
	}), nil
}

// DashboardPage is the admin dashboard.
type DashboardPage struct {
	Stats  readmodel.DashboardStats `json:"stats"`
	Recent []readmodel.ReviewEntry  `json:"recent"`
}

func BuildDashboard(s readmodel.Snapshot) DashboardPage {
	return DashboardPage{
		Stats:  readmodel.Stats(s),
		Recent: readmodel.RecentActivity(s, readmodel.DashboardRecentLimit),
	}
}

// AdminDashboard loads and composes the admin dashboard.
func (a *App) AdminDashboard(ctx context.Context, h session.Holder) (DashboardPage, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return DashboardPage{}, err
	}
	return BuildDashboard(a.LoadAdminSnapshot(ctx, sess)), nil
}

// ManageBooksPage lists books with their aggregates.
type ManageBooksPage struct {
	Search string                `json:"search"`
	Total  int                   `json:"total"`
	Books  []readmodel.BookEntry `json:"books"`
}

func BuildManageBooks(s readmodel.Snapshot, term string) ManageBooksPage {
	return ManageBooksPage{
		Search: term,
		Total:  len(s.Books),
		Books:  readmodel.BookEntries(s, readmodel.FilterBooks(s.Books, term)),
	}
}

// ManageBooks loads and composes the manage-books page.
func (a *App) ManageBooks(ctx context.Context, h session.Holder, term string) (ManageBooksPage, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return ManageBooksPage{}, err
	}
	return BuildManageBooks(a.LoadAdminSnapshot(ctx, sess), term), nil
}

// ModerationPage is the admin review listing.
type ModerationPage struct {
	Filter  readmodel.ReviewFilterDTO `json:"filter"`
	Books   []domain.Book             `json:"books"`
	Reviews []readmodel.ReviewEntry   `json:"reviews"`
	Results int                       `json:"results"`
}

func BuildModeration(s readmodel.Snapshot, f readmodel.ReviewFilter) ModerationPage {
	view := readmodel.Compose(s, f)
	return ModerationPage{
		Filter:  view.Filter,
		Books:   s.Books,
		Reviews: view.Reviews,
		Results: len(view.Reviews),
	}
}

// ModerateReviews loads and composes the moderation page.
func (a *App) ModerateReviews(ctx context.Context, h session.Holder, f readmodel.ReviewFilter) (ModerationPage, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return ModerationPage{}, err
	}
	return BuildModeration(a.LoadAdminSnapshot(ctx, sess), f), nil
}

// AddBook validates and submits a new book.
func (a *App) AddBook(ctx context.Context, h session.Holder, form BookForm) (domain.NewBook, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return domain.NewBook{}, err
	}
	if err := form.Validate(); err != nil {
		return domain.NewBook{}, err
	}
	book := form.Book()
	if err := a.api.AddBook(ctx, sess.Token, book); err != nil {
		logBackendError(ctx, err)
		return domain.NewBook{}, err
	}
	return book, nil
}

// DeleteBook deletes a book and, once the backend confirmed, drops it and
// its reviews from the snapshot in one step.
func (a *App) DeleteBook(ctx context.Context, h session.Holder, s readmodel.Snapshot, bookID int) (readmodel.Snapshot, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return s, err
	}
	if err := a.api.DeleteBook(ctx, sess.Token, bookID); err != nil {
		logBackendError(ctx, err)
		return s, err
	}
	return s.WithoutBook(bookID), nil
}

// DeleteReview deletes one review and drops it from the snapshot.
func (a *App) DeleteReview(ctx context.Context, h session.Holder, s readmodel.Snapshot, reviewID int) (readmodel.Snapshot, error) {
	sess, err := a.RequireAdmin(ctx, h)
	if err != nil {
		return s, err
	}
	if err := a.api.DeleteReview(ctx, sess.Token, reviewID); err != nil {
		logBackendError(ctx, err)
		return s, err
	}
	return s.WithoutReview(reviewID), nil
}

func logBackendError(ctx context.Context, err error) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		util.LoggerFromContext(ctx).Warn("backend call failed", apiErr.LogAttrs()...)
		return
	}
	util.LoggerFromContext(ctx).Warn("backend call failed", "err", err)
}
