package segment

import "github.com/ignite/mailcraft/internal/pkg/apperr"

var (
	ErrNotFound  = apperr.NotFound("segment")
	ErrNotStatic = apperr.Invalid("members can only be edited on static segments")
)
