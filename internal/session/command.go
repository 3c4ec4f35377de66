// ABOUTME: Per-session FIFO command queue with at-most-once delivery.
// ABOUTME: Enqueuing the reserved stream-control types also flips session streaming state.

package session

import "time"

// Reserved command types whose enqueue carries a side effect on the
// session's streaming state. The side effect happens at enqueue time, so
// the controller's view of the streaming flag changes immediately, before
// the agent ever polls the command.
const (
	TypeStartStream = "start_stream"
	TypeStopStream  = "stop_stream"

	// TypeChatMessage delivers controller chat to the agent over the
	// command channel (see AppendChat).
	TypeChatMessage = "chat_msg"
)

// Command is one unit of work queued for an agent. Commands are immutable
// after creation and delivered to at most one poll.
type Command struct {
	ID     string
	Type   string
	Params string
}

// Enqueue appends a command to the session's queue and returns its
// generated identifier. Returns ErrSessionNotFound for unknown sessions.
func (r *Registry) Enqueue(sessionID, cmdType, params string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}

	cmdID := r.enqueueLocked(s, cmdType, params)
	r.logger.Debug("command queued",
		"session_id", sessionID,
		"cmd_id", cmdID,
		"type", cmdType,
		"queue_len", len(s.queue),
	)
	return cmdID, nil
}

// enqueueLocked generates a globally unique command identifier, applies
// any reserved-type side effects, and appends the command. Must be called
// with mu held.
func (r *Registry) enqueueLocked(s *Session, cmdType, params string) string {
	cmdID := r.newCommandIDLocked()

	switch cmdType {
	case TypeStartStream:
		s.Streaming = true
	case TypeStopStream:
		s.Streaming = false
		s.frame = nil
	}

	s.queue = append(s.queue, Command{ID: cmdID, Type: cmdType, Params: params})
	r.resultOwner[cmdID] = s.ID
	return cmdID
}

// DequeueOne removes and returns the head of the session's queue, or nil
// if the queue is empty. The session's heartbeat is refreshed either way.
// A dequeued command is gone for good: the polling transport gives
// at-most-once delivery, with no redelivery if the response is lost.
func (r *Registry) DequeueOne(sessionID string) (*Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.LastSeen = time.Now()

	if len(s.queue) == 0 {
		return nil, nil
	}

	cmd := s.queue[0]
	s.queue = s.queue[1:]
	return &cmd, nil
}

// newCommandIDLocked generates a command identifier unique across all
// sessions; the result owner index doubles as the issued-ID set. Must be
// called with mu held.
func (r *Registry) newCommandIDLocked() string {
	for {
		id := newToken(r.tokenLen)
		if _, taken := r.resultOwner[id]; !taken {
			return id
		}
	}
}
