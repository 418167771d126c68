package store

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrPolicy       = errors.New("policy violation")
	ErrIntegrity    = errors.New("integrity violation")
	ErrInvalidInput = errors.New("invalid input")
)
