package readmodel

import (
	"math"
	"strconv"

	"bookhub/pkg/domain"
)

// Aggregate is the per-book rating summary.
type Aggregate struct {
	ReviewCount   int     `json:"reviewCount"`
	AverageRating float64 `json:"averageRating"`
	Stars         int     `json:"stars"`
}

// Display formats the average with one decimal ("0.0" when unrated).
func (a Aggregate) Display() string {
	return formatRating(a.AverageRating)
}

// AggregateFor summarizes the reviews that reference bookID.
func AggregateFor(reviews []domain.Review, bookID int) Aggregate {
	var count, sum int
	for _, r := range reviews {
		if r.BookID != bookID {
			continue
		}
		count++
		sum += r.Rating
	}
	return newAggregate(count, sum)
}

// Aggregates summarizes every book in the snapshot in one pass over reviews.
// Books without reviews map to the zero aggregate.
func Aggregates(s Snapshot) map[int]Aggregate {
	counts := make(map[int]int, len(s.Books))
	sums := make(map[int]int, len(s.Books))
	for _, r := range s.Reviews {
		counts[r.BookID]++
		sums[r.BookID] += r.Rating
	}
	out := make(map[int]Aggregate, len(s.Books))
	for _, b := range s.Books {
		out[b.ID] = newAggregate(counts[b.ID], sums[b.ID])
	}
	return out
}

// Average is the mean rating of reviews, 0 when there are none.
func Average(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

func newAggregate(count, sum int) Aggregate {
	if count == 0 {
		return Aggregate{}
	}
	avg := float64(sum) / float64(count)
	return Aggregate{
		ReviewCount:   count,
		AverageRating: avg,
		Stars:         Stars(avg),
	}
}

// Stars rounds an average to whole stars in [0, 5].
func Stars(avg float64) int {
	n := int(math.Round(avg))
	if n < 0 {
		return 0
	}
	if n > domain.MaxRating {
		return domain.MaxRating
	}
	return n
}

// formatRating rounds halves up to one decimal, so 2.25 reads "2.3".
func formatRating(avg float64) string {
	return strconv.FormatFloat(math.Round(avg*10)/10, 'f', 1, 64)
}
