// Package auth provides optional bearer-token protection for the
// controller API using HS256-signed JWTs.
package auth
