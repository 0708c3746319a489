// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so every endpoint returns the same JSON envelopes.
package httputil
