package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/validator"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/logger"
)

type ingestResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// IngestUpload stores the multipart "file" field under the upload directory
// and starts a job over it. The copy is deleted once the job has read it.
func (h *Handler) IngestUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}

	path, err := h.saveUpload(mr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, errNoFilePart):
			h.writeError(w, http.StatusBadRequest, "file field is required")
		default:
			logger.FromContext(r.Context()).Error("saving upload failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "saving upload failed")
		}
		return
	}

	h.startJob(w, r, tracker.FileSource{Path: path, RemoveAfter: true})
}

var errNoFilePart = errors.New("no file part")

func (h *Handler) saveUpload(mr *multipart.Reader) (string, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", errNoFilePart
		}
		if err != nil {
			return "", err
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		defer part.Close()

		if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
			return "", fmt.Errorf("creating upload dir: %w", err)
		}
		f, err := os.CreateTemp(h.cfg.UploadDir, "upload-*.txt")
		if err != nil {
			return "", fmt.Errorf("creating upload file: %w", err)
		}
		if _, err := io.Copy(f, part); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("closing upload file: %w", err)
		}
		return f.Name(), nil
	}
}

// IngestPath starts a job over a file already present on the server.
func (h *Handler) IngestPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"filePath"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	path, err := validator.IngestPath(req.FilePath)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.startJob(w, r, tracker.FileSource{Path: path})
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request, src tracker.FileSource) {
	jobID, err := h.tracker.Start(r.Context(), src)
	if err != nil {
		if src.RemoveAfter {
			os.Remove(src.Path)
		}
		if errors.Is(err, tracker.ErrClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		h.writeAppError(w, r, err, "starting ingestion")
		return
	}
	h.writeJSON(w, http.StatusAccepted, ingestResponse{
		Status:  "Ingestion initiated",
		JobID:   jobID,
		Message: fmt.Sprintf("Check /api/events/ingestion-status/%s for updates.", jobID),
	})
}

// IngestionStatus returns the current snapshot of one job.
func (h *Handler) IngestionStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.tracker.Status(r.PathValue("jobId"))
	if apperrors.Is(err, apperrors.ErrJobNotFound) {
		h.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.writeAppError(w, r, err, "fetching job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// IngestionJobs lists every retained job, newest first.
func (h *Handler) IngestionJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.tracker.List()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
