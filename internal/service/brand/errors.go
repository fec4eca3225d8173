package brand

import "github.com/ignite/mailcraft/internal/pkg/apperr"

var (
	ErrNotFound     = apperr.NotFound("brand")
	ErrListNotFound = apperr.NotFound("list")
	// ErrBadSubmitKey rejects public submissions with a wrong list key.
	ErrBadSubmitKey = apperr.ErrForbidden
)
