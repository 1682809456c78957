package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clip-splitter/internal/middleware"
	"clip-splitter/internal/processor"
	"clip-splitter/internal/transcoder"
)

func decodeUpload(t *testing.T, w *httptest.ResponseRecorder) UploadResponse {
	t.Helper()
	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeUploadError(t *testing.T, w *httptest.ResponseRecorder) uploadErrorResponse {
	t.Helper()
	var resp uploadErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestUploadSuccess(t *testing.T) {
	hs := newHarness(t, harnessOptions{})

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("holiday.mp4", []byte("fake video bytes"))))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeUpload(t, w)

	if resp.Project != "project 1" {
		t.Errorf("project = %q", resp.Project)
	}
	if resp.Duration != 310 || resp.NumSegments != 3 {
		t.Errorf("duration = %v, numSegments = %d", resp.Duration, resp.NumSegments)
	}
	want := processor.Summary{TotalSegments: 3, ProcessedClips: 3, FailedClips: 0, Success: true}
	if resp.ProcessingSummary != want {
		t.Errorf("summary = %+v, want %+v", resp.ProcessingSummary, want)
	}
	if len(resp.Clips) != 3 {
		t.Fatalf("got %d clips", len(resp.Clips))
	}
	for i, clip := range resp.Clips {
		wantURL := "/clips/project%201/part" + string(rune('1'+i)) + ".mp4"
		if clip.Part != i+1 || clip.URL != wantURL {
			t.Errorf("clip %d = %+v, want url %s", i, clip, wantURL)
		}
		if _, err := os.Stat(clip.Path); err != nil {
			t.Errorf("clip file missing: %v", err)
		}
	}

	if n := hs.uploadCount(t); n != 0 {
		t.Errorf("%d uploads left after processing", n)
	}
	if hs.registry.Len() != 0 {
		t.Errorf("registry still holds %d jobs", hs.registry.Len())
	}
	if id := w.Header().Get(middleware.JobIDHeader); len(id) != 36 {
		t.Errorf("%s = %q, want a uuid", middleware.JobIDHeader, id)
	}
}

func TestUploadPartialFailure(t *testing.T) {
	hs := newHarness(t, harnessOptions{})
	hs.encoder.fail[2] = true

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("a.mp4", []byte("data"))))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeUpload(t, w)
	want := processor.Summary{TotalSegments: 3, ProcessedClips: 2, FailedClips: 1, Success: true}
	if resp.ProcessingSummary != want {
		t.Errorf("summary = %+v, want %+v", resp.ProcessingSummary, want)
	}
	if len(resp.Clips) != 2 || resp.Clips[0].Part != 1 || resp.Clips[1].Part != 3 {
		t.Errorf("clips = %+v", resp.Clips)
	}
}

func TestUploadTotalFailure(t *testing.T) {
	hs := newHarness(t, harnessOptions{})
	for i := 1; i <= 3; i++ {
		hs.encoder.fail[i] = true
	}

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("a.mp4", []byte("data"))))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	resp := decodeUploadError(t, w)
	if resp.ProcessingSummary == nil {
		t.Fatal("missing processingSummary")
	}
	want := processor.Summary{TotalSegments: 3, ProcessedClips: 0, FailedClips: 3, Success: false}
	if *resp.ProcessingSummary != want {
		t.Errorf("summary = %+v, want %+v", *resp.ProcessingSummary, want)
	}
	if n := hs.uploadCount(t); n != 0 {
		t.Errorf("upload not cleaned up after total failure")
	}
	if hs.registry.Len() != 0 {
		t.Error("slot not released")
	}
}

func TestUploadBusy(t *testing.T) {
	hs := newHarness(t, harnessOptions{ceiling: 2})
	for i := 0; i < 2; i++ {
		if _, err := hs.registry.TryAdmit(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("a.mp4", []byte("data"))))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if hs.prober.Calls() != 0 {
		t.Error("busy request reached the prober")
	}
	if n := hs.uploadCount(t); n != 0 {
		t.Error("busy request wrote an upload")
	}
	if hs.registry.Len() != 2 {
		t.Errorf("registry len = %d, want 2", hs.registry.Len())
	}
}

func TestUploadRefusedWhileShuttingDown(t *testing.T) {
	tests := []struct {
		name string
		stop func(hs *harness)
	}{
		{"draining", func(hs *harness) { hs.h.SetDraining() }},
		{"registry closed", func(hs *harness) { hs.registry.CancelAll() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, harnessOptions{})
			tt.stop(hs)

			w := httptest.NewRecorder()
			hs.h.Upload(w, uploadRequest(t, videoPart("late.mp4", []byte("data"))))

			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", w.Code)
			}
			if n := len(hs.encoder.Overlays()); n != 0 {
				t.Errorf("%d segment commands created during shutdown", n)
			}
			if hs.prober.Calls() != 0 {
				t.Error("request reached the prober during shutdown")
			}
			if n := hs.uploadCount(t); n != 0 {
				t.Errorf("%d uploads written during shutdown", n)
			}
			if hs.registry.Len() != 0 {
				t.Errorf("registry len = %d, want 0", hs.registry.Len())
			}
		})
	}
}

func TestUploadClaimedWhileReceiving(t *testing.T) {
	hs := newHarness(t, harnessOptions{})

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	req := httptest.NewRequest(http.MethodPost, "/upload", pr)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hs.h.Upload(w, req)
	}()

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="video"; filename="slow.mp4"`)
	hdr.Set("Content-Type", "video/mp4")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("first chunk of a slow upload")); err != nil {
		t.Fatal(err)
	}

	// The body is still open: the file must already be owned by the job.
	var partial string
	claimed := false
	deadline := time.Now().Add(5 * time.Second)
	for !claimed && time.Now().Before(deadline) {
		uploads, err := hs.store.ListUploads()
		if err != nil {
			t.Fatal(err)
		}
		if len(uploads) == 1 {
			partial = uploads[0].Path
			claimed = hs.registry.Claims(partial)
		}
		if !claimed {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if partial == "" {
		pw.CloseWithError(io.ErrUnexpectedEOF)
		<-done
		t.Fatal("upload file never appeared")
	}
	if !claimed {
		t.Errorf("partial upload %s is not claimed while receiving", partial)
	}

	if _, err := part.Write([]byte(" and the rest")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not finish")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestUploadBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		parts   []formPart
		status  int
		message string
	}{
		{
			name:    "no file",
			parts:   []formPart{textPart("customMessage", "hi")},
			status:  http.StatusBadRequest,
			message: "No video file uploaded",
		},
		{
			name:    "not a video",
			parts:   []formPart{{name: "video", filename: "cat.png", contentType: "image/png", data: []byte("png")}},
			status:  http.StatusBadRequest,
			message: "Only video files are allowed",
		},
		{
			name:    "two videos",
			parts:   []formPart{videoPart("a.mp4", []byte("a")), videoPart("b.mp4", []byte("b"))},
			status:  http.StatusBadRequest,
			message: "Only one video file may be uploaded",
		},
		{
			name:    "caption too long",
			parts:   []formPart{videoPart("a.mp4", []byte("a")), textPart("customMessage", strings.Repeat("x", maxFieldBytes+1))},
			status:  http.StatusBadRequest,
			message: "Form field too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, harnessOptions{})

			w := httptest.NewRecorder()
			hs.h.Upload(w, uploadRequest(t, tt.parts...))

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.message) {
				t.Errorf("body = %s, want %q", w.Body.String(), tt.message)
			}
			if n := hs.uploadCount(t); n != 0 {
				t.Errorf("%d uploads left behind", n)
			}
			if hs.registry.Len() != 0 {
				t.Error("slot not released")
			}
		})
	}
}

func TestUploadNotMultipart(t *testing.T) {
	hs := newHarness(t, harnessOptions{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"video":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	hs.h.Upload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	hs := newHarness(t, harnessOptions{maxUpload: 16})

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("big.mp4", make([]byte, 64))))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if n := hs.uploadCount(t); n != 0 {
		t.Error("oversized upload left on disk")
	}
	if hs.registry.Len() != 0 {
		t.Error("slot not released")
	}
}

func TestUploadQuota(t *testing.T) {
	hs := newHarness(t, harnessOptions{quota: 1000})
	hs.prober.duration = 10

	existing := filepath.Join(hs.store.ClipsDir(), "project 1")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(existing, "part1.mp4"), make([]byte, 900), 0o644); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("a.mp4", make([]byte, 150))))
	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("900+150 status = %d, want 507", w.Code)
	}
	if hs.prober.Calls() != 0 {
		t.Error("rejected upload was probed")
	}
	if n := hs.uploadCount(t); n != 0 {
		t.Error("rejected upload left on disk")
	}
	if hs.registry.Len() != 0 {
		t.Error("slot not released after quota rejection")
	}

	w = httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("b.mp4", make([]byte, 50))))
	if w.Code != http.StatusOK {
		t.Fatalf("900+50 status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if resp := decodeUpload(t, w); resp.Project != "project 2" {
		t.Errorf("project = %q, want project 2", resp.Project)
	}
}

func TestUploadProbeFailure(t *testing.T) {
	hs := newHarness(t, harnessOptions{})
	hs.prober.err = errProbe

	w := httptest.NewRecorder()
	hs.h.Upload(w, uploadRequest(t, videoPart("broken.mp4", []byte("data"))))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	resp := decodeUploadError(t, w)
	if resp.ProcessingSummary == nil || resp.ProcessingSummary.Success {
		t.Errorf("summary = %+v", resp.ProcessingSummary)
	}
	if n := hs.uploadCount(t); n != 0 {
		t.Error("unreadable upload left on disk")
	}
	projects, err := hs.store.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Errorf("project created for unreadable upload: %+v", projects)
	}
}

func TestUploadOverlayFields(t *testing.T) {
	tests := []struct {
		name  string
		parts []formPart
		want  transcoder.Overlay
	}{
		{
			name:  "fields after file",
			parts: []formPart{videoPart("a.mp4", []byte("a")), textPart("customMessage", " Watch till the end "), textPart("fontStyle", "Impact")},
			want:  transcoder.Overlay{Caption: "Watch till the end", Font: "Impact"},
		},
		{
			name:  "fields before file",
			parts: []formPart{textPart("customMessage", "hello"), videoPart("a.mp4", []byte("a"))},
			want:  transcoder.Overlay{Caption: "hello", Font: transcoder.DefaultFont},
		},
		{
			name:  "empty font keeps default",
			parts: []formPart{textPart("fontStyle", ""), videoPart("a.mp4", []byte("a"))},
			want:  transcoder.Overlay{Font: transcoder.DefaultFont},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, harnessOptions{})
			hs.prober.duration = 30

			w := httptest.NewRecorder()
			hs.h.Upload(w, uploadRequest(t, tt.parts...))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}

			overlays := hs.encoder.Overlays()
			if len(overlays) != 1 || overlays[0] != tt.want {
				t.Errorf("overlays = %+v, want [%+v]", overlays, tt.want)
			}
		})
	}
}

func TestUploadClientDisconnect(t *testing.T) {
	hs := newHarness(t, harnessOptions{})
	hs.encoder.block = make(chan struct{})
	hs.encoder.started = make(chan int, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := uploadRequest(t, videoPart("a.mp4", []byte("data"))).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		hs.h.Upload(w, req)
	}()

	select {
	case <-hs.encoder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first segment never started")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	if w.Body.Len() != 0 || w.Header().Get("Content-Type") != "" {
		t.Errorf("response written after disconnect: %d %q", w.Code, w.Body.String())
	}
	if hs.registry.Len() != 0 {
		t.Error("cancelled job still registered")
	}
	if len(hs.encoder.Overlays()) != 1 {
		t.Errorf("segments started after cancel: %d", len(hs.encoder.Overlays()))
	}
}

func TestFormErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errNoFile, http.StatusBadRequest},
		{errNotVideo, http.StatusBadRequest},
		{errBadForm, http.StatusBadRequest},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{errProbe, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := formErrorStatus(tt.err); got != tt.want {
			t.Errorf("formErrorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
