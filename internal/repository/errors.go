// Package repository contains the GORM-backed data access layer. Each
// aggregate (missions, voyages, chauffeurs, subcontractors, finance, users,
// sessions, logs) gets its own repository over a shared *gorm.DB.
package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")

	// ErrConflict is returned when a uniqueness constraint is violated,
	// typically a duplicate code.
	ErrConflict = errors.New("repository: conflict")
)

// translate maps GORM-level errors to the package sentinels and wraps the
// rest with the given operation label.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ListOptions carries pagination parameters shared by list queries.
type ListOptions struct {
	Limit  int
	Offset int
}
