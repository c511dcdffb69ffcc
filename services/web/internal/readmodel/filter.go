package readmodel

import (
	"sort"
	"strings"

	"bookhub/pkg/domain"
)

// AllBooks disables the book filter of a ReviewFilter.
const AllBooks = 0

// ReviewFilter selects and orders a review listing.
type ReviewFilter struct {
	Search string
	BookID int
	Sort   domain.SortKey
}

// ParseSortKey maps user input to a sort key, defaulting to newest.
func ParseSortKey(v string) domain.SortKey {
	switch key := domain.SortKey(strings.ToLower(strings.TrimSpace(v))); key {
	case domain.SortNewest, domain.SortOldest, domain.SortHighest, domain.SortLowest:
		return key
	default:
		return domain.SortNewest
	}
}

// FilterReviews returns a new slice with the reviews matching f, ordered by f.Sort.
// Ties keep their input order. An unknown sort key keeps input order entirely.
func FilterReviews(reviews []domain.Review, f ReviewFilter) []domain.Review {
	term := strings.ToLower(f.Search)
	out := make([]domain.Review, 0, len(reviews))
	for _, r := range reviews {
		if f.BookID != AllBooks && r.BookID != f.BookID {
			continue
		}
		if term != "" && !containsFold(r.UserName, term) && !containsFold(r.Content, term) {
			continue
		}
		out = append(out, r)
	}
	if less := reviewLess(f.Sort); less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func reviewLess(key domain.SortKey) func(a, b domain.Review) bool {
	switch key {
	case domain.SortNewest:
		return func(a, b domain.Review) bool { return a.Timestamp.After(b.Timestamp) }
	case domain.SortOldest:
		return func(a, b domain.Review) bool { return a.Timestamp.Before(b.Timestamp) }
	case domain.SortHighest:
		return func(a, b domain.Review) bool { return a.Rating > b.Rating }
	case domain.SortLowest:
		return func(a, b domain.Review) bool { return a.Rating < b.Rating }
	default:
		return nil
	}
}

// FilterBooks matches term case-insensitively against title or author.
func FilterBooks(books []domain.Book, term string) []domain.Book {
	term = strings.ToLower(term)
	out := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if term == "" || containsFold(b.Title, term) || containsFold(b.Author, term) {
			out = append(out, b)
		}
	}
	return out
}

// lowerTerm must already be lower-cased.
func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}
