// Package domain defines the core business types for mailcraft.
//
// Types in this package are value objects shared by handlers, services and
// repositories. They carry the invariants that must hold no matter which
// store persists them (contact status agreement, monotonic enrollment steps).
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed
//   - Methods must be pure functions of the receiver and their arguments
package domain
