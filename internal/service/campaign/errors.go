package campaign

import "github.com/ignite/mailcraft/internal/pkg/apperr"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = apperr.NotFound("campaign")
	ErrRecipientNotFound = apperr.NotFound("campaign recipient")
	ErrInvalidTransition = apperr.Conflict("invalid status transition")
	ErrMissingAudience   = apperr.Invalid("campaign has no list or segment")
	ErrAlreadySending    = apperr.Conflict("campaign is already sending or sent")
	ErrNotDraft          = apperr.Conflict("only draft campaigns can be changed")
)
