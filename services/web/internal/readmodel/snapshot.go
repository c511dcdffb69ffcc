// Package readmodel joins independently fetched books and reviews into the
// derived views the pages render. Everything here is pure: the same inputs
// always produce the same outputs and no input slice is modified.
package readmodel

import "bookhub/pkg/domain"

// Snapshot is the current in-memory pair of collections for one page view.
type Snapshot struct {
	Books   []domain.Book   `json:"books"`
	Reviews []domain.Review `json:"reviews"`
}

// FromFetch builds a snapshot from two fetch outcomes. A failed fetch
// contributes an empty collection instead of an error.
func FromFetch(books []domain.Book, booksErr error, reviews []domain.Review, reviewsErr error) Snapshot {
	if booksErr != nil || books == nil {
		books = []domain.Book{}
	}
	if reviewsErr != nil || reviews == nil {
		reviews = []domain.Review{}
	}
	return Snapshot{Books: books, Reviews: reviews}
}

// Book returns the book with id, if present.
func (s Snapshot) Book(id int) (domain.Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Book{}, false
}

// WithoutBook drops the book and every review that references it.
func (s Snapshot) WithoutBook(id int) Snapshot {
	books := make([]domain.Book, 0, len(s.Books))
	for _, b := range s.Books {
		if b.ID != id {
			books = append(books, b)
		}
	}
	reviews := make([]domain.Review, 0, len(s.Reviews))
	for _, r := range s.Reviews {
		if r.BookID != id {
			reviews = append(reviews, r)
		}
	}
	return Snapshot{Books: books, Reviews: reviews}
}

// WithoutReview drops one review; books are untouched.
func (s Snapshot) WithoutReview(id int) Snapshot {
	reviews := make([]domain.Review, 0, len(s.Reviews))
	for _, r := range s.Reviews {
		if r.ID != id {
			reviews = append(reviews, r)
		}
	}
	return Snapshot{Books: s.Books, Reviews: reviews}
}

// WithReview appends a review; books are untouched.
func (s Snapshot) WithReview(r domain.Review) Snapshot {
	reviews := make([]domain.Review, 0, len(s.Reviews)+1)
	reviews = append(reviews, s.Reviews...)
	reviews = append(reviews, r)
	return Snapshot{Books: s.Books, Reviews: reviews}
}
