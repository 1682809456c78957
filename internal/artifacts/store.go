package artifacts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"clip-splitter/internal/filesystem"
	"clip-splitter/internal/logging"
)

var (
	// ErrUploadTooLarge is returned when an upload exceeds the size limit.
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")
	// ErrInvalidName is returned for project or clip names that would escape
	// the clips directory.
	ErrInvalidName = errors.New("invalid artifact name")
)

var projectPattern = regexp.MustCompile(`^project (\d+)$`)

// Kind distinguishes the two artifact trees the store manages.
type Kind string

const (
	KindUpload  Kind = "upload"
	KindProject Kind = "project"
)

// Artifact is one upload file or one project directory.
type Artifact struct {
	Kind    Kind
	Name    string
	Path    string
	ModTime time.Time
	IsDir   bool
}

// Project is an allocated output directory for the clips of one upload.
type Project struct {
	Number int
	Name   string
	Path   string
}

// Store owns the on-disk layout:
//
//	<uploads>/<unixmillis>-<name>
//	<clips>/project <N>/part<K>.mp4
type Store struct {
	uploadDir string
	clipsDir  string
	retry     filesystem.RetryConfig
	now       func() time.Time

	// mu serializes project numbering.
	mu          sync.Mutex
	lastProject int
}

// NewStore creates the upload and clips directories if needed.
func NewStore(uploadDir, clipsDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, clipsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Store{
		uploadDir: uploadDir,
		clipsDir:  clipsDir,
		retry:     filesystem.DefaultRetryConfig(),
		now:       time.Now,
	}, nil
}

// UploadDir returns the directory holding raw uploads.
func (s *Store) UploadDir() string { return s.uploadDir }

// ClipsDir returns the root of all project directories.
func (s *Store) ClipsDir() string { return s.clipsDir }

// SaveUpload streams r into a new file in the upload directory, named
// "<unixmillis>-<sanitized name>". At most limit bytes are accepted when
// limit > 0; a larger body removes the partial file and returns
// ErrUploadTooLarge.
//
// claim, if set, is called with the path right after the file is created
// and before any data is written, so the file is owned for the whole
// transfer. An error from claim removes the file and is returned.
func (s *Store) SaveUpload(originalName string, r io.Reader, limit int64, claim func(path string) error) (string, int64, error) {
	f, path, err := s.createUploadFile(sanitizeFilename(originalName))
	if err != nil {
		return "", 0, err
	}
	if claim != nil {
		if err := claim(path); err != nil {
			f.Close()
			s.removePartial(path)
			return "", 0, fmt.Errorf("claim upload: %w", err)
		}
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close upload: %w", closeErr)
	case limit > 0 && written > limit:
		err = ErrUploadTooLarge
	}
	if err != nil {
		s.removePartial(path)
		return "", 0, err
	}

	return path, written, nil
}

func (s *Store) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to remove partial upload %s: %v", path, err)
	}
}

func (s *Store) createUploadFile(name string) (*os.File, string, error) {
	stamp := s.now().UnixMilli()
	for attempt := 0; attempt < 16; attempt++ {
		path := filepath.Join(s.uploadDir, fmt.Sprintf("%d-%s", stamp+int64(attempt), name))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create upload file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create upload file: no free name for %q", name)
}

// AllocateProject creates the next "project <N>" directory. Numbering is
// serialized: N is one past the highest number seen on disk or handed out
// by this store, and the directory is created exclusively so two uploads can
// never share one.
func (s *Store) AllocateProject() (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest, err := s.highestProjectNumber()
	if err != nil {
		return Project{}, err
	}
	n := max(highest, s.lastProject) + 1

	for attempt := 0; attempt < 64; attempt++ {
		name := ProjectName(n)
		path := filepath.Join(s.clipsDir, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			s.lastProject = n
			logging.Debug("Allocated %s", path)
			return Project{Number: n, Name: name, Path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return Project{}, fmt.Errorf("create project directory: %w", err)
		}
		n++
	}
	return Project{}, fmt.Errorf("create project directory: too many collisions after %s", ProjectName(n))
}

func (s *Store) highestProjectNumber() (int, error) {
	entries, err := filesystem.ReadDirWithRetry(s.clipsDir, s.retry)
	if err != nil {
		return 0, fmt.Errorf("scan clips directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if n, ok := ParseProjectName(e.Name()); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// ClipPath resolves a project name and clip filename to a path inside the
// clips directory, rejecting anything that could traverse out of it.
func (s *Store) ClipPath(project, filename string) (string, error) {
	if _, ok := ParseProjectName(project); !ok {
		return "", fmt.Errorf("%w: project %q", ErrInvalidName, project)
	}
	if filename == "" || filename == "." || filename == ".." ||
		filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: file %q", ErrInvalidName, filename)
	}
	return filepath.Join(s.clipsDir, project, filename), nil
}

// ListUploads returns every regular file in the upload directory.
func (s *Store) ListUploads() ([]Artifact, error) {
	entries, err := filesystem.ReadDirWithRetry(s.uploadDir, s.retry)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat upload %s: %w", e.Name(), err)
		}
		out = append(out, Artifact{
			Kind:    KindUpload,
			Name:    e.Name(),
			Path:    filepath.Join(s.uploadDir, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// ListProjects returns every "project <N>" directory, in ascending N order.
// Other entries in the clips directory are ignored.
func (s *Store) ListProjects() ([]Artifact, error) {
	entries, err := filesystem.ReadDirWithRetry(s.clipsDir, s.retry)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	type numbered struct {
		n int
		a Artifact
	}
	var found []numbered
	for _, e := range entries {
		n, ok := ParseProjectName(e.Name())
		if !ok || !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat project %s: %w", e.Name(), err)
		}
		found = append(found, numbered{n: n, a: Artifact{
			Kind:    KindProject,
			Name:    e.Name(),
			Path:    filepath.Join(s.clipsDir, e.Name()),
			ModTime: info.ModTime(),
			IsDir:   true,
		}})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]Artifact, len(found))
	for i, f := range found {
		out[i] = f.a
	}
	return out, nil
}

// Remove deletes an artifact: uploads are unlinked, projects removed
// recursively. It returns the number of bytes the artifact occupied.
func (s *Store) Remove(a Artifact) (int64, error) {
	size, err := DirSize(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Debug("Could not size %s before removal: %v", a.Path, err)
	}
	if err := filesystem.RemoveWithRetry(a.Path, a.IsDir, s.retry); err != nil {
		return 0, fmt.Errorf("remove %s %s: %w", a.Kind, a.Name, err)
	}
	return size, nil
}

// RemoveFile unlinks a single file, treating a missing file as removed.
func (s *Store) RemoveFile(path string) error {
	return filesystem.RemoveWithRetry(path, false, s.retry)
}

// VerifyOutput checks that a produced clip exists as a non-empty regular
// file and returns its size.
func (s *Store) VerifyOutput(path string) (int64, error) {
	info, err := filesystem.StatWithRetry(path, s.retry)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return info.Size(), nil
}

// ProjectName formats the directory name for project number n.
func ProjectName(n int) string {
	return "project " + strconv.Itoa(n)
}

// ParseProjectName returns the number of a "project <N>" directory name.
func ParseProjectName(name string) (int, bool) {
	m := projectPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// sanitizeFilename keeps the base name of an uploaded file and replaces
// anything outside a conservative character set.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}
