package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/processor"
	"clip-splitter/internal/segment"
	"clip-splitter/internal/startup"
	"clip-splitter/internal/transcoder"
)

type fakeProber struct {
	mu       sync.Mutex
	duration float64
	err      error
	calls    int
}

func (p *fakeProber) Probe(_ context.Context, _ string) (*transcoder.VideoInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &transcoder.VideoInfo{Duration: p.duration, Width: 1920, Height: 1080, Codec: "h264"}, nil
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// stubCommand writes a small clip on Wait. With a block channel it waits
// until the channel closes or the command is killed.
type stubCommand struct {
	output  string
	fail    bool
	block   chan struct{}
	started chan<- int
	index   int

	killOnce sync.Once
	killed   chan struct{}
}

func (c *stubCommand) Start() error {
	if c.started != nil {
		c.started <- c.index
	}
	return nil
}

func (c *stubCommand) Wait() error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-c.killed:
			return transcoder.ErrKilled
		}
	}
	if c.fail {
		return &transcoder.ProcessError{Command: "ffmpeg", ExitCode: 1, Stderr: "Conversion failed!"}
	}
	return os.WriteFile(c.output, []byte("mp4 data"), 0o644)
}

func (c *stubCommand) Kill() error {
	c.killOnce.Do(func() { close(c.killed) })
	return nil
}

type stubEncoder struct {
	mu       sync.Mutex
	fail     map[int]bool
	block    chan struct{}
	started  chan int
	overlays []transcoder.Overlay
}

func (e *stubEncoder) SegmentCommand(_, output string, seg segment.Segment, overlay transcoder.Overlay) processor.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overlays = append(e.overlays, overlay)
	return &stubCommand{
		output:  output,
		fail:    e.fail[seg.Index],
		block:   e.block,
		started: e.started,
		index:   seg.Index,
		killed:  make(chan struct{}),
	}
}

func (e *stubEncoder) Overlays() []transcoder.Overlay {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transcoder.Overlay(nil), e.overlays...)
}

type harness struct {
	h          *Handlers
	registry   *jobs.Registry
	store      *artifacts.Store
	accountant *artifacts.Accountant
	prober     *fakeProber
	encoder    *stubEncoder
}

type harnessOptions struct {
	quota     int64
	maxUpload int64
	ceiling   int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.maxUpload == 0 {
		opts.maxUpload = 1 << 20
	}
	if opts.ceiling == 0 {
		opts.ceiling = 2
	}

	dir := t.TempDir()
	store, err := artifacts.NewStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "clips"))
	if err != nil {
		t.Fatal(err)
	}
	registry := jobs.NewRegistry(opts.ceiling)
	accountant := artifacts.NewAccountant(store, opts.quota)
	encoder := &stubEncoder{fail: map[int]bool{}}
	prober := &fakeProber{duration: 310}
	proc := processor.New(registry, store, encoder, nil)

	config := &startup.Config{MaxUploadSize: opts.maxUpload, SegmentLength: 120}
	return &harness{
		h:          New(registry, store, accountant, prober, proc, config),
		registry:   registry,
		store:      store,
		accountant: accountant,
		prober:     prober,
		encoder:    encoder,
	}
}

// uploadCount returns the number of files left in the upload directory.
func (hs *harness) uploadCount(t *testing.T) int {
	t.Helper()
	uploads, err := hs.store.ListUploads()
	if err != nil {
		t.Fatal(err)
	}
	return len(uploads)
}

type formPart struct {
	name        string
	filename    string
	contentType string
	data        []byte
}

func videoPart(filename string, data []byte) formPart {
	return formPart{name: "video", filename: filename, contentType: "video/mp4", data: data}
}

func textPart(name, value string) formPart {
	return formPart{name: name, data: []byte(value)}
}

func uploadRequest(t *testing.T, parts ...formPart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := make(textproto.MIMEHeader)
		if p.filename != "" {
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.name, p.filename))
			hdr.Set("Content-Type", p.contentType)
		} else {
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.name))
		}
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(p.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var errProbe = errors.New("moov atom not found")
