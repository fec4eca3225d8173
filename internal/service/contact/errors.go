package contact

import "github.com/ignite/mailcraft/internal/pkg/apperr"

var (
	ErrNotFound  = apperr.NotFound("contact")
	ErrDuplicate = apperr.Conflict("contact already exists in this list")
)
