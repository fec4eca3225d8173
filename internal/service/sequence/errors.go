package sequence

import "github.com/ignite/mailcraft/internal/pkg/apperr"

var (
	ErrNotFound           = apperr.NotFound("sequence")
	ErrEnrollmentNotFound = apperr.NotFound("enrollment")
	ErrAlreadyEnrolled    = apperr.Conflict("contact is already enrolled")
	ErrNotMailable        = apperr.Invalid("contact cannot receive mail")
	ErrPaused             = apperr.Invalid("sequence is paused")
)
