// Package gateway wires the session registry, blob store, and optional
// controller auth behind the HTTP polling API served by muster-gateway.
package gateway
