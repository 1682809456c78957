package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strings"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/mediatypes"
	"clip-splitter/internal/metrics"
	"clip-splitter/internal/middleware"
	"clip-splitter/internal/processor"
	"clip-splitter/internal/segment"
	"clip-splitter/internal/transcoder"
)

const (
	videoField   = "video"
	captionField = "customMessage"
	fontField    = "fontStyle"

	maxFieldBytes     = 4 << 10
	multipartOverhead = 1 << 20
)

var (
	errNoFile       = errors.New("no video file uploaded")
	errNotVideo     = errors.New("only video files are allowed")
	errExtraFile    = errors.New("only one video file may be uploaded")
	errFieldTooLong = errors.New("form field too long")
	errBadForm      = errors.New("invalid multipart form")
)

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Project           string            `json:"project"`
	Clips             []processor.Clip  `json:"clips"`
	Duration          float64           `json:"duration"`
	NumSegments       int               `json:"numSegments"`
	ProcessingSummary processor.Summary `json:"processingSummary"`
}

type uploadErrorResponse struct {
	Error             string             `json:"error"`
	ProcessingSummary *processor.Summary `json:"processingSummary,omitempty"`
}

type uploadForm struct {
	path    string
	size    int64
	caption string
	font    string
}

// Upload accepts a video, splits it into clips and answers with their URLs.
// The job slot is taken before the body is read and released on every
// exit path. A client that disconnects cancels the job and gets no response.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeShuttingDown(w)
		return
	}
	job, err := h.registry.TryAdmit(context.WithoutCancel(r.Context()))
	if errors.Is(err, jobs.ErrBusy) {
		writeJSONError(w, "Server is busy. Please try again later.", http.StatusTooManyRequests)
		return
	}
	if errors.Is(err, jobs.ErrClosed) {
		writeShuttingDown(w)
		return
	}
	if err != nil {
		logging.Error("Failed to admit upload: %v", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer h.registry.Unregister(job.ID)
	w.Header().Set(middleware.JobIDHeader, job.ID)

	log := logging.WithPrefix("job " + jobLabel(job.ID))

	stopWatch := context.AfterFunc(r.Context(), func() {
		if err := h.registry.Cancel(job.ID); err == nil {
			log.Warn("Client disconnected, job cancelled")
		}
	})
	defer stopWatch()

	var segments []segment.Segment
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		log.Error("Panic while processing upload: %v\n%s", rec, debug.Stack())
		if job.Cancelled() {
			return
		}
		summary := processor.Summarize(segments)
		summary.Success = false
		writeUploadError(w, http.StatusInternalServerError, "Error processing video", &summary)
	}()

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}

	form, err := h.readUploadForm(r, job.ID, log)
	if err != nil {
		if job.Cancelled() || r.Context().Err() != nil {
			return
		}
		status, message := formErrorStatus(err)
		if status == http.StatusInternalServerError {
			log.Error("Failed to receive upload: %v", err)
		} else {
			log.Info("Rejected upload: %v", err)
		}
		writeJSONError(w, message, status)
		return
	}

	if err := h.accountant.Check(form.size, form.path); err != nil {
		h.discardUpload(form.path, log)
		if errors.Is(err, artifacts.ErrQuotaExceeded) {
			metrics.JobsRejectedTotal.WithLabelValues("quota").Inc()
			log.Warn("Rejected upload: %v", err)
			writeJSONError(w, "Server storage limit reached. Please try again later.", http.StatusInsufficientStorage)
			return
		}
		log.Error("Failed to measure storage: %v", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.UploadBytesTotal.Add(float64(form.size))
	log.Info("Received %s (%.2f MB)", filepath.Base(form.path), float64(form.size)/(1024*1024))

	info, err := h.prober.Probe(job.Context(), form.path)
	if err == nil {
		segments, err = segment.Plan(info.Duration, h.segmentLength)
	}
	if err != nil {
		if job.Cancelled() {
			return
		}
		h.discardUpload(form.path, log)
		log.Error("Failed to read video: %v", err)
		writeUploadError(w, http.StatusInternalServerError, "Error processing video: could not read video duration", &processor.Summary{})
		return
	}

	project, err := h.store.AllocateProject()
	if err != nil {
		h.discardUpload(form.path, log)
		log.Error("Failed to create project: %v", err)
		summary := processor.Summarize(segments)
		writeUploadError(w, http.StatusInternalServerError, "Error processing video", &summary)
		return
	}
	log.Info("Splitting %.2fs into %d segments in %s", info.Duration, len(segments), project.Name)

	overlay := transcoder.Overlay{Caption: form.caption, Font: form.font}
	res := h.processor.Run(job.Context(), job, form.path, project, segments, overlay)

	if res.Cancelled {
		return
	}
	if err := res.Err(); err != nil {
		writeUploadError(w, http.StatusInternalServerError, "Error processing video: all segments failed", &res.Summary)
		return
	}

	clips := res.Clips
	if clips == nil {
		clips = []processor.Clip{}
	}
	writeJSONResponse(w, http.StatusOK, UploadResponse{
		Project:           project.Name,
		Clips:             clips,
		Duration:          info.Duration,
		NumSegments:       len(segments),
		ProcessingSummary: res.Summary,
	})
}

// readUploadForm streams the multipart body. The video part goes straight to
// disk and is claimed for the job as soon as the file exists; text fields
// may arrive before or after it.
func (h *Handlers) readUploadForm(r *http.Request, jobID string, log logging.Prefixed) (form uploadForm, err error) {
	form.font = transcoder.DefaultFont
	defer func() {
		if err != nil && form.path != "" {
			h.discardUpload(form.path, log)
			form.path = ""
		}
	}()

	mr, err := r.MultipartReader()
	if err != nil {
		return form, fmt.Errorf("%w: %w", errBadForm, err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return form, fmt.Errorf("%w: %w", errBadForm, err)
		}

		switch part.FormName() {
		case videoField:
			if part.FileName() == "" {
				break
			}
			if form.path != "" {
				part.Close()
				return form, errExtraFile
			}
			if !mediatypes.IsVideoContentType(part.Header.Get("Content-Type")) {
				part.Close()
				return form, fmt.Errorf("%w: got %q", errNotVideo, part.Header.Get("Content-Type"))
			}
			claim := func(path string) error { return h.registry.Claim(jobID, path) }
			form.path, form.size, err = h.store.SaveUpload(part.FileName(), part, h.maxUploadSize, claim)
			if err != nil {
				part.Close()
				return form, err
			}
		case captionField:
			if form.caption, err = readField(part); err != nil {
				part.Close()
				return form, err
			}
		case fontField:
			font, err := readField(part)
			if err != nil {
				part.Close()
				return form, err
			}
			if font != "" {
				form.font = font
			}
		}
		part.Close()
	}

	if form.path == "" {
		return form, errNoFile
	}
	return form, nil
}

func readField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errBadForm, err)
	}
	if len(data) > maxFieldBytes {
		return "", errFieldTooLong
	}
	return strings.TrimSpace(string(data)), nil
}

// formErrorStatus maps a form read error to a status code and client message.
func formErrorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, artifacts.ErrUploadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "File too large"
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest, "No video file uploaded"
	case errors.Is(err, errNotVideo):
		return http.StatusBadRequest, "Only video files are allowed"
	case errors.Is(err, errExtraFile):
		return http.StatusBadRequest, "Only one video file may be uploaded"
	case errors.Is(err, errFieldTooLong):
		return http.StatusBadRequest, "Form field too long"
	case errors.Is(err, errBadForm):
		return http.StatusBadRequest, "Invalid multipart form"
	}
	return http.StatusInternalServerError, "Error saving upload"
}

func writeShuttingDown(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
	writeJSONError(w, "Server is shutting down. Please try again later.", http.StatusServiceUnavailable)
}

func writeUploadError(w http.ResponseWriter, status int, message string, summary *processor.Summary) {
	writeJSONResponse(w, status, uploadErrorResponse{Error: message, ProcessingSummary: summary})
}

func (h *Handlers) discardUpload(path string, log logging.Prefixed) {
	if err := h.store.RemoveFile(path); err != nil {
		log.Warn("Failed to remove upload %s: %v", filepath.Base(path), err)
	}
}

func jobLabel(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
