package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bookhub/pkg/domain"
)

// Client calls the book-review backend over HTTP.
// Each method performs exactly one round trip; nothing is retried or cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a backend client. A nil httpClient uses a client
// without a timeout so the transport defaults apply.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp LoginResult
	if err := c.doJSON(ctx, "login", ErrLogin, http.MethodPost, "/login", "", payload, &resp); err != nil {
		return LoginResult{}, err
	}
	if resp.Token == "" {
		return LoginResult{}, &Error{Op: "login", Kind: ErrLogin, Status: http.StatusOK, Cause: errors.New("response missing token")}
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	payload := map[string]string{"name": name, "email": email, "password": password}
	return c.doJSON(ctx, "register", ErrRegister, http.MethodPost, "/register", "", payload, nil)
}

func (c *Client) GetBooks(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.doJSON(ctx, "get_books", ErrFetchBooks, http.MethodGet, "/books", "", nil, &books); err != nil {
		return nil, err
	}
	return nonNil(books), nil
}

func (c *Client) GetReviews(ctx context.Context, bookID int) ([]domain.Review, error) {
	path := fmt.Sprintf("/reviews/%d", bookID)
	var reviews []domain.Review
	if err := c.doJSON(ctx, "get_reviews", ErrFetchReviews, http.MethodGet, path, "", nil, &reviews); err != nil {
		return nil, err
	}
	return nonNil(reviews), nil
}

// SubmitReview posts a review. Rating and content are validated by the caller.
func (c *Client) SubmitReview(ctx context.Context, token string, bookID, rating int, content string) error {
	payload := map[string]any{"book_id": bookID, "rating": rating, "content": content}
	return c.doJSON(ctx, "submit_review", ErrSubmitReview, http.MethodPost, "/reviews", token, payload, nil)
}

func (c *Client) AddBook(ctx context.Context, token string, book domain.NewBook) error {
	return c.doJSON(ctx, "add_book", ErrAddBook, http.MethodPost, "/admin/books", token, book, nil)
}

func (c *Client) DeleteBook(ctx context.Context, token string, bookID int) error {
	path := fmt.Sprintf("/admin/books/%d", bookID)
	return c.doJSON(ctx, "delete_book", ErrDeleteBook, http.MethodDelete, path, token, nil, nil)
}

// ListAllReviews returns reviews for every book. The backend enforces the admin check.
func (c *Client) ListAllReviews(ctx context.Context, token string) ([]domain.Review, error) {
	var reviews []domain.Review
	if err := c.doJSON(ctx, "list_all_reviews", ErrListReviews, http.MethodGet, "/admin/reviews", token, nil, &reviews); err != nil {
		return nil, err
	}
	return nonNil(reviews), nil
}

func (c *Client) DeleteReview(ctx context.Context, token string, reviewID int) error {
	path := fmt.Sprintf("/admin/reviews/%d", reviewID)
	return c.doJSON(ctx, "delete_review", ErrDeleteReview, http.MethodDelete, path, token, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, op string, kind error, method, path, token string, payload any, out any) error {
	fail := func(status int, cause error) error {
		return &Error{Op: op, Kind: kind, Status: status, Cause: cause}
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fail(0, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fail(0, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	addAuthHeader(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()
	if statusFailed(resp.StatusCode) {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return fail(resp.StatusCode, errors.New(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
