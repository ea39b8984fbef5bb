package domain

import "errors"

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrHistoryIndexOutOfRange = errors.New("history index out of range")
	ErrUnauthorized           = errors.New("caller is not authorized")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConcurrentUpdate       = errors.New("product was modified concurrently")
)

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrHistoryIndexOutOfRange)
}
