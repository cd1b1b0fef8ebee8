package nvstore

import "errors"

var (
	ErrNotFound        = errors.New("nvstore: not found")
	ErrInvalidState    = errors.New("nvstore: invalid state")
	ErrNotInitialized  = errors.New("nvstore: partition not initialized")
	ErrNoFreePages     = errors.New("nvstore: no free pages")
	ErrNewVersionFound = errors.New("nvstore: new version found")
	ErrTypeMismatch    = errors.New("nvstore: type mismatch")
	ErrInvalidLength   = errors.New("nvstore: invalid length")
	ErrInvalidHandle   = errors.New("nvstore: invalid handle")
	ErrReadOnly        = errors.New("nvstore: read only")
	ErrInvalidName     = errors.New("nvstore: invalid name")
)

// Recoverable reports whether err describes a partition that was truncated or
// written with an incompatible layout. Such a partition may come back after
// one re-initialization.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNoFreePages) || errors.Is(err, ErrNewVersionFound)
}
