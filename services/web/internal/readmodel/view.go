package readmodel

import (
	"sort"

	"bookhub/pkg/domain"
)

// UnknownBookTitle labels a review whose book is missing from the snapshot.
const UnknownBookTitle = "Unknown Book"

// DashboardRecentLimit is how many reviews the admin dashboard lists.
const DashboardRecentLimit = 5

// ReviewEntry is a review annotated with the title of its book.
type ReviewEntry struct {
	domain.Review
	BookTitle string `json:"bookTitle"`
}

// BookEntry is a book annotated with its aggregate.
type BookEntry struct {
	domain.Book
	Aggregate
	AverageDisplay string `json:"averageDisplay"`
}

// DashboardStats are the admin dashboard counters.
type DashboardStats struct {
	TotalBooks     int     `json:"totalBooks"`
	TotalReviews   int     `json:"totalReviews"`
	AverageRating  float64 `json:"averageRating"`
	AverageDisplay string  `json:"averageDisplay"`
}

// View is everything a page may render from one snapshot.
type View struct {
	Books    []BookEntry     `json:"books"`
	Reviews  []ReviewEntry   `json:"reviews"`
	Recent   []ReviewEntry   `json:"recent"`
	Stats    DashboardStats  `json:"stats"`
	Filter   ReviewFilterDTO `json:"filter"`
	HasMatch bool            `json:"hasMatch"`
}

// ReviewFilterDTO echoes the applied filter back to the caller.
type ReviewFilterDTO struct {
	Search string         `json:"search"`
	BookID int            `json:"bookId"`
	Sort   domain.SortKey `json:"sort"`
}

// Compose recomputes every derived view from scratch.
func Compose(s Snapshot, f ReviewFilter) View {
	reviews := Annotate(s, FilterReviews(s.Reviews, f))
	return View{
		Books:    BookEntries(s, s.Books),
		Reviews:  reviews,
		Recent:   RecentActivity(s, DashboardRecentLimit),
		Stats:    Stats(s),
		Filter:   ReviewFilterDTO{Search: f.Search, BookID: f.BookID, Sort: f.Sort},
		HasMatch: len(reviews) > 0,
	}
}

// BookEntries annotates books (a subset of s.Books, in their order) with aggregates.
func BookEntries(s Snapshot, books []domain.Book) []BookEntry {
	aggs := Aggregates(s)
	out := make([]BookEntry, 0, len(books))
	for _, b := range books {
		agg, ok := aggs[b.ID]
		if !ok {
			agg = AggregateFor(s.Reviews, b.ID)
		}
		out = append(out, BookEntry{Book: b, Aggregate: agg, AverageDisplay: agg.Display()})
	}
	return out
}

// Annotate resolves each review's book title against the snapshot.
func Annotate(s Snapshot, reviews []domain.Review) []ReviewEntry {
	titles := make(map[int]string, len(s.Books))
	for _, b := range s.Books {
		titles[b.ID] = b.Title
	}
	out := make([]ReviewEntry, 0, len(reviews))
	for _, r := range reviews {
		title, ok := titles[r.BookID]
		if !ok {
			title = UnknownBookTitle
		}
		out = append(out, ReviewEntry{Review: r, BookTitle: title})
	}
	return out
}

// RecentActivity returns the n newest reviews with their book titles.
func RecentActivity(s Snapshot, n int) []ReviewEntry {
	if n <= 0 {
		return []ReviewEntry{}
	}
	sorted := make([]domain.Review, len(s.Reviews))
	copy(sorted, s.Reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return Annotate(s, sorted)
}

// Stats computes the admin dashboard counters.
func Stats(s Snapshot) DashboardStats {
	avg := Average(s.Reviews)
	return DashboardStats{
		TotalBooks:     len(s.Books),
		TotalReviews:   len(s.Reviews),
		AverageRating:  avg,
		AverageDisplay: formatRating(avg),
	}
}
