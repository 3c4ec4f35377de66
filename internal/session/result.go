// ABOUTME: Per-session result store with globally addressed, consume-once reads.
// ABOUTME: A secondary command-id index lets the controller consume without naming the session.

package session

import "time"

// SetResult records the agent's result for a command, overwriting any
// prior payload for the same command identifier (last write wins, so an
// agent retrying a report is harmless). The session's heartbeat is
// refreshed. Returns ErrSessionNotFound for unknown sessions.
func (r *Registry) SetResult(sessionID, cmdID, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastSeen = time.Now()

	s.results[cmdID] = payload
	r.resultOwner[cmdID] = sessionID

	r.logger.Debug("result stored", "session_id", sessionID, "cmd_id", cmdID)
	return nil
}

// ConsumeResult removes and returns the pending result for a command, if
// any. The command identifier is globally addressed: the controller does
// not say which session it belongs to. A second consume with no
// intervening SetResult reports ok=false, as does a consume for a command
// whose session has been evicted (sweeping purges the index, so stale
// results are never served).
func (r *Registry) ConsumeResult(cmdID string) (payload string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.resultOwner[cmdID]
	if !ok {
		return "", false
	}
	s, ok := r.sessions[owner]
	if !ok {
		return "", false
	}

	payload, ok = s.results[cmdID]
	if !ok {
		// Command issued but not yet answered: keep the index entry so a
		// later SetResult/ConsumeResult pair still connects.
		return "", false
	}

	delete(s.results, cmdID)
	delete(r.resultOwner, cmdID)
	return payload, true
}
