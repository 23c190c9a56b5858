package repository

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.

import (
	"context"
	"errors"

	"docproof/internal/model"
)

var (
	// ErrDuplicateHash is returned when a write violates the content hash
	// uniqueness constraint.
	ErrDuplicateHash = errors.New("content hash already registered")
	// ErrDuplicateSerial is returned when a write violates the serial
	// number uniqueness constraint.
	ErrDuplicateSerial = errors.New("serial number already registered")
)

// DocumentRepository defines data access for document records using SQL queries only.
// No business logic here — strictly persistence operations.
//
// Hash and serial uniqueness are enforced by database constraints; writes
// that lose a race surface ErrDuplicateHash or ErrDuplicateSerial so the
// caller can retry or reject.
type DocumentRepository interface {
	// Create inserts a new document record with all derived fields already
	// computed. Returns the stored record.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a record by its ID.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindByHash returns the record whose content hash matches exactly.
	FindByHash(ctx context.Context, hash string) (*model.Document, error)

	// FindBySerialAndID returns the record matching both the serial number
	// and the document ID.
	FindBySerialAndID(ctx context.Context, serial, id string) (*model.Document, error)

	// SerialExists reports whether a serial number is already assigned.
	SerialExists(ctx context.Context, serial string) (bool, error)

	// Update rewrites the mutable fields of an existing record (content
	// reference, hash, serial, provenance code) in a single statement.
	Update(ctx context.Context, doc *model.Document) (*model.Document, error)

	// List returns a paginated list of records and total rows count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// Delete removes a record by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
