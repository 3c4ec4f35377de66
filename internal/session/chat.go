// ABOUTME: Append-only per-session chat log shared by agent and controller.
// ABOUTME: Controller messages additionally ride the command queue so the agent sees them on its next poll.

package session

import "time"

// Chat sender roles.
const (
	SenderAdmin = "admin"
	SenderAgent = "client"
)

// ChatMessage is one entry in a session's chat log.
type ChatMessage struct {
	Sender    string
	Message   string
	Timestamp time.Time
}

// AppendChat appends a message to the session's chat log and refreshes
// the heartbeat. When the sender is the controller (SenderAdmin), a
// TypeChatMessage command carrying the text is also enqueued, so delivery
// to the agent shares the at-most-once command channel while the log
// itself stays a separately retained, non-consuming history.
func (r *Registry) AppendChat(sessionID, sender, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastSeen = time.Now()

	s.chat = append(s.chat, ChatMessage{
		Sender:    sender,
		Message:   text,
		Timestamp: time.Now(),
	})

	if sender == SenderAdmin {
		r.enqueueLocked(s, TypeChatMessage, text)
	}
	return nil
}

// ChatHistory returns a copy of the session's chat log in append order.
// Unknown sessions yield an empty history rather than an error: read-only
// history queries are deliberately lenient.
func (r *Registry) ChatHistory(sessionID string) []ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}
