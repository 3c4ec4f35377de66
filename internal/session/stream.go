// ABOUTME: Latest-value-wins frame cache for streaming sessions.
// ABOUTME: A lossy single-slot channel, deliberately separate from the command/result channels.

package session

import "time"

// PushFrame overwrites the session's single frame slot with the given
// bytes and stamps the capture time, refreshing the heartbeat. The
// streaming flag is not required to be set: agents pushing spuriously are
// tolerated. Frames for unknown sessions are dropped (ok=false).
func (r *Registry) PushFrame(sessionID string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	now := time.Now()
	s.LastSeen = now
	s.frame = frame
	s.frameTime = now
	return true
}

// LatestFrame returns the current frame slot contents without consuming
// them, or ok=false if no frame is cached.
func (r *Registry) LatestFrame(sessionID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// IsStreaming reports the session's streaming flag, flipped by enqueuing
// the reserved stream-control command types. Unknown sessions report
// false.
func (r *Registry) IsStreaming(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	return ok && s.Streaming
}
