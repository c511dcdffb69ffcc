package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"bookhub/pkg/domain"
)

// ReviewForm is the "write review" form.
type ReviewForm struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

// Validate checks the rating range and that content is present.
func (f ReviewForm) Validate() error {
	errs := fieldErrors{}
	if f.Rating < domain.MinRating || f.Rating > domain.MaxRating {
		errs["rating"] = fmt.Sprintf("must be between %d and %d", domain.MinRating, domain.MaxRating)
	}
	errs.require("content", f.Content)
	return errs.err()
}

// OverSoftLimit reports whether the content is longer than the suggested maximum.
func (f ReviewForm) OverSoftLimit() bool {
	return utf8.RuneCountInString(strings.TrimSpace(f.Content)) > domain.ReviewContentSoftLimit
}

// BookForm is the admin "add book" form.
type BookForm struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func (f BookForm) Validate() error {
	errs := fieldErrors{}
	errs.require("title", f.Title)
	errs.require("author", f.Author)
	errs.require("description", f.Description)
	return errs.err()
}

// Book returns the trimmed payload sent to the backend.
func (f BookForm) Book() domain.NewBook {
	return domain.NewBook{
		Title:       strings.TrimSpace(f.Title),
		Author:      strings.TrimSpace(f.Author),
		Description: strings.TrimSpace(f.Description),
		ImageURL:    strings.TrimSpace(f.ImageURL),
	}
}

// LoginForm holds credentials.
type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (f LoginForm) Validate() error {
	errs := fieldErrors{}
	errs.require("email", f.Email)
	if f.Password == "" {
		errs["password"] = "is required"
	}
	return errs.err()
}

// RegisterForm is the sign-up form.
type RegisterForm struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (f RegisterForm) Validate() error {
	errs := fieldErrors{}
	errs.require("name", f.Name)
	errs.require("email", f.Email)
	if f.Password == "" {
		errs["password"] = "is required"
	}
	return errs.err()
}
