package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const streamWriteWait = 5 * time.Second

// StreamIngestionStatus pushes job snapshots over a WebSocket until the job
// reaches a terminal state or the client goes away. Unchanged snapshots are
// not resent.
func (h *Handler) StreamIngestionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")
	if _, err := h.tracker.Status(id); apperrors.Is(err, apperrors.ErrJobNotFound) {
		h.writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return
	}
	defer conn.Close()
	log := logger.FromContext(r.Context()).With("job_id", id)

	// Drain client frames so close messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.StreamInterval)
	defer ticker.Stop()

	var last tracker.Job
	sent := false
	for {
		job, err := h.tracker.Status(id)
		if err != nil {
			// Reaped while streaming.
			h.closeStream(conn, websocket.CloseGoingAway, "job no longer tracked")
			return
		}
		if !sent || changed(last, job) {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(job); err != nil {
				log.Debug("status stream write failed", "error", err)
				return
			}
			last, sent = job, true
		}
		if job.Status.Terminal() {
			h.closeStream(conn, websocket.CloseNormalClosure, string(job.Status))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

func changed(a, b tracker.Job) bool {
	return a.Status != b.Status ||
		a.TotalLines != b.TotalLines ||
		a.ProcessedLines != b.ProcessedLines ||
		a.ErrorLines != b.ErrorLines
}
