// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers write through these helpers so every endpoint shares the same JSON
// envelope and the same mapping from service errors to status codes.
package httputil
