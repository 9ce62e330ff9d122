package services

import "errors"

var (
	// ErrNotFound is returned when a dataset or data point id resolves to
	// nothing, in staging and in the database alike.
	ErrNotFound = errors.New("not found")

	// ErrInvalidUpload rejects an upload that fails structural validation
	// before anything is persisted.
	ErrInvalidUpload = errors.New("invalid upload")
)
