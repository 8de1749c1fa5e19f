package download

import "github.com/NamanBalaji/rangedl/internal/errors"

var (
	ErrInvalidArgument = errors.ErrInvalidArgument
	ErrInvalidURL      = errors.ErrInvalidURL
	ErrTimeout         = errors.ErrTimeout
	ErrCanceled        = errors.ErrCanceled
)

// IsInvalidArgument reports whether Download rejected its configuration
// before emitting any event.
func IsInvalidArgument(err error) bool {
	return errors.CategoryOf(err) == errors.CategoryInvalidArgument
}
