package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SortKey orders a review listing.
type SortKey string

const (
	SortNewest  SortKey = "newest"
	SortOldest  SortKey = "oldest"
	SortHighest SortKey = "highest"
	SortLowest  SortKey = "lowest"
)

const (
	MinRating = 1
	MaxRating = 5

	// ReviewContentSoftLimit is shown to the user as a hint; longer text is still submitted.
	ReviewContentSoftLimit = 1000
)

type Book struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Summary     string `json:"summary,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// NewBook is the payload of an admin "add book" action.
type NewBook struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

type Review struct {
	ID        int       `json:"id"`
	BookID    int       `json:"book_id"`
	UserID    int       `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// timestampLayouts are the creation-time formats the backend is known to emit.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads a review creation time in any of the accepted layouts.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// UnmarshalJSON decodes a review, reading timestamp as a string in any
// accepted layout or as Unix milliseconds. An unreadable timestamp leaves
// the zero time so one odd row never fails a whole listing.
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = decodeTimestamp(aux.Timestamp)
	return nil
}

func decodeTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := ParseTimestamp(s)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

type User struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// Session is the authenticated principal of one browser.
type Session struct {
	Token   string `json:"token"`
	UserID  int    `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// NewSession builds a session from a login result.
func NewSession(token string, user User) Session {
	return Session{
		Token:   token,
		UserID:  user.ID,
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	}
}

// Valid reports whether the session carries a credential.
func (s Session) Valid() bool {
	return s.Token != ""
}
