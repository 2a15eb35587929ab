// Package apperrors holds the SDK error taxonomy. Packages return the
// sentinels below (wrapped with context); callers classify with errors.Is
// or Category.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrInvalidSeed            = errors.New("invalid seed")
	ErrDecryption             = errors.New("decryption failed")
	ErrIntegrity              = errors.New("invalid hmac")
	ErrTruncatedStream        = errors.New("hmac size error")
	ErrUnsupportedVersion     = errors.New("invalid version")
	ErrAddressPublication     = errors.New("the master address is not published on the blockchain")
	ErrAddressListPublication = errors.New("the addresses are not published on the blockchain")
	ErrPublication            = errors.New("transaction is not published on the blockchain")
	ErrTransport              = errors.New("transport error")
	ErrAuthorizationMismatch  = errors.New("blockchain is not authorized with the information provided")
	ErrNotFound               = errors.New("not found")
)

const (
	CategoryValidation    = "validation"
	CategoryCrypto        = "crypto"
	CategoryTransport     = "transport"
	CategoryPublication   = "publication"
	CategoryAuthorization = "authorization"
	CategoryStorage       = "storage"
)

type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func normalizeCategory(category string) string {
	switch c := strings.ToLower(strings.TrimSpace(category)); c {
	case CategoryValidation, CategoryCrypto, CategoryTransport, CategoryPublication,
		CategoryAuthorization, CategoryStorage:
		return c
	default:
		return CategoryStorage
	}
}

// Wrap tags err with category. An already categorized error keeps its
// original category.
func Wrap(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{Category: normalizeCategory(category), Err: err}
}

// Category classifies err, first by an explicit tag and then by the
// sentinel it wraps.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeCategory(classified.Category)
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidSeed),
		errors.Is(err, ErrDecryption), errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrTruncatedStream), errors.Is(err, ErrUnsupportedVersion):
		return CategoryCrypto
	case errors.Is(err, ErrAddressPublication), errors.Is(err, ErrAddressListPublication),
		errors.Is(err, ErrPublication):
		return CategoryPublication
	case errors.Is(err, ErrTransport):
		return CategoryTransport
	case errors.Is(err, ErrAuthorizationMismatch):
		return CategoryAuthorization
	default:
		return CategoryStorage
	}
}

// Validation builds a fail-fast argument error.
func Validation(format string, args ...any) error {
	return &CategorizedError{
		Category: CategoryValidation,
		Err:      fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...)),
	}
}

// Transport wraps a remote failure with the operation that failed, keeping
// the remote detail string.
func Transport(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{
		Category: CategoryTransport,
		Err:      fmt.Errorf("%s: %w: %w", operation, ErrTransport, err),
	}
}

// IsValidation reports whether err is a programmer/precondition error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
