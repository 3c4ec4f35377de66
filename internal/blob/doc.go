// Package blob stores uploaded files as filesystem bytes keyed by a
// sanitized name, with a SQLite index of upload metadata for listing.
package blob
