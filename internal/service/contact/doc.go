// Package contact manages contacts: profile edits, tags, status changes,
// public list submissions and CSV export.
//
// Status changes go through domain.Contact so the status field and the
// legacy unsubscribed flag never disagree. Listeners registered with
// OnStatusChange run after a contact stops being mailable; the sequence
// service uses this to cancel enrollments.
package contact
