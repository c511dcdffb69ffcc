package app

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated indicates the browser has no session.
	ErrUnauthenticated = errors.New("login required")
	// ErrForbidden indicates a non-admin session on an admin page.
	ErrForbidden = errors.New("admin access required")
	// ErrBookNotFound indicates the requested book is not in the catalog.
	ErrBookNotFound = errors.New("book not found")
)

// ValidationError lists form fields that failed validation. It is produced
// before any backend call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) require(name, value string) {
	if strings.TrimSpace(value) == "" {
		f[name] = "is required"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
