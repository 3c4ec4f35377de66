// ABOUTME: Random token generation for session and command identifiers.
// ABOUTME: Draws from crypto/rand; length is a registry tuning knob.

package session

import (
	"crypto/rand"
	"encoding/hex"
)

// newToken returns n hex characters of randomness. The default length of
// 8 gives 32 bits, plenty for the expected session and command volume;
// raise Options.TokenLen if a deployment ever needs more headroom.
func newToken(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(buf)[:n]
}
