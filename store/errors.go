package store

import (
	"errors"

	"github.com/jacentio/lattice/index"
	"github.com/jacentio/lattice/table"
)

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = table.ErrNotFound

	// ErrAlreadyExists is returned when inserting a record whose key is taken.
	ErrAlreadyExists = errors.New("lattice: record already exists")

	// ErrConflict is returned when a record changed since it was read.
	ErrConflict = table.ErrConflict

	// ErrValidation is returned when InsertOrReplace finds a required index
	// entry missing.
	ErrValidation = index.ErrValidation

	// ErrUnknownIndex is returned for an index field the table doesn't declare.
	ErrUnknownIndex = errors.New("lattice: unknown index")

	// ErrUnknownTable is returned for a table that isn't registered.
	ErrUnknownTable = errors.New("lattice: unknown table")

	// ErrDuplicateTable is returned when registering a table name twice.
	ErrDuplicateTable = errors.New("lattice: duplicate table")
)
