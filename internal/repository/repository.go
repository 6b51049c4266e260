// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository implements the persistence collaborator of the
// step-up engine over sqlx. Lookups are keyed by user id and/or digest,
// never by raw secret.
package repository

import (
	"database/sql"
	"errors"

	"github.com/vinovest/sqlx"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Repository wraps the database handle for all entity method sets.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying handle for direct access in tests.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// wrapError converts database errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
