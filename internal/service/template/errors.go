package template

import "github.com/ignite/mailcraft/internal/pkg/apperr"

var ErrNotFound = apperr.NotFound("template")
