package repository

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyOwner = errors.New("owner has no roll number")
	ErrNoVectors  = errors.New("no embeddings to save")
	ErrBadVector  = errors.New("embedding is empty")
)

// StorageError wraps every failure of an EmbeddingStore. Op names the
// operation ("save", "load", "count").
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("embedding store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
