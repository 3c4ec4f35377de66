// ABOUTME: Controller-facing HTTP handlers: session listing, command scheduling,
// ABOUTME: result harvesting, blob download, and streaming frame/status reads.

package gateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/musterhq/muster/internal/blob"
)

// SessionResponse is one entry in the GET /admin/list response.
type SessionResponse struct {
	ID       string `json:"id"`
	IP       string `json:"ip"`
	LastSeen int    `json:"last_seen"`
}

// CommandRequest is the JSON request body for POST /admin/command.
type CommandRequest struct {
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
	Params   string `json:"params"`
}

// CommandQueuedResponse is the JSON response for POST /admin/command.
type CommandQueuedResponse struct {
	CmdID  string `json:"cmd_id"`
	Status string `json:"status"`
}

// ResultResponse is the JSON response for GET /admin/response/{cmd_id}.
// Output is only present when Status is "done".
type ResultResponse struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// StreamStatusResponse is the JSON response for GET /admin/stream_status/{id}.
type StreamStatusResponse struct {
	Streaming bool `json:"streaming"`
}

// FileResponse is one entry in the GET /admin/files response.
type FileResponse struct {
	Name       string `json:"name"`
	SessionID  string `json:"session_id"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploaded_at"`
}

// handleAdminList handles GET /admin/list: sweeps expired sessions, then
// reports the live ones with derived idle seconds.
func (g *Gateway) handleAdminList(w http.ResponseWriter, r *http.Request) {
	infos := g.registry.List()

	resp := make([]SessionResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, SessionResponse{
			ID:       info.ID,
			IP:       info.Addr,
			LastSeen: info.IdleSeconds,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAdminCommand handles POST /admin/command: schedules a command for
// a session's next poll.
func (g *Gateway) handleAdminCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmdID, err := g.registry.Enqueue(req.TargetID, req.Type, req.Params)
	if err != nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, CommandQueuedResponse{CmdID: cmdID, Status: "queued"})
}

// handleAdminResponse handles GET /admin/response/{cmd_id}: consumes the
// result if present, else reports pending. Pending covers both
// not-yet-answered commands and commands whose session has been swept.
func (g *Gateway) handleAdminResponse(w http.ResponseWriter, r *http.Request) {
	payload, ok := g.registry.ConsumeResult(r.PathValue("cmd_id"))
	if !ok {
		writeJSON(w, http.StatusOK, ResultResponse{Status: "pending"})
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Status: "done", Output: payload})
}

// handleAdminDownload handles GET /admin/download_file/{name}: streams a
// stored blob back to the controller.
func (g *Gateway) handleAdminDownload(w http.ResponseWriter, r *http.Request) {
	rc, err := g.blobs.Open(r.PathValue("name"))
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		g.logger.Error("opening blob", "name", r.PathValue("name"), "error", err)
		writeError(w, http.StatusInternalServerError, "opening file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		g.logger.Warn("streaming blob", "name", r.PathValue("name"), "error", err)
	}
}

// handleAdminFiles handles GET /admin/files: lists stored uploads from
// the blob index, most recent first.
func (g *Gateway) handleAdminFiles(w http.ResponseWriter, r *http.Request) {
	objects, err := g.blobs.List(r.Context())
	if err != nil {
		g.logger.Error("listing blobs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing files")
		return
	}

	resp := make([]FileResponse, 0, len(objects))
	for _, o := range objects {
		resp = append(resp, FileResponse{
			Name:       o.Name,
			SessionID:  o.SessionID,
			Filename:   o.Filename,
			Size:       o.Size,
			UploadedAt: o.UploadedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAdminStreamFrame handles GET /admin/stream_frame/{id}: returns
// the latest cached frame without consuming it.
func (g *Gateway) handleAdminStreamFrame(w http.ResponseWriter, r *http.Request) {
	frame, ok := g.registry.LatestFrame(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no frame available")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame)
}

// handleAdminStreamStatus handles GET /admin/stream_status/{id}.
func (g *Gateway) handleAdminStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StreamStatusResponse{
		Streaming: g.registry.IsStreaming(r.PathValue("id")),
	})
}
