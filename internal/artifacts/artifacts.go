// Package artifacts collects the files a replay run leaves behind and
// optionally mirrors them to object storage.
//
// Every run gets its own directory under the artifacts root, named by run
// ID. The same relative layout is used for object keys.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
	"github.com/kuitang/checkers-replay/internal/runner"
)

// File names inside a run directory.
const (
	StateFile      = "state.json"
	ReportFile     = "report.json"
	TranscriptFile = "transcript.txt"
	DiffFile       = "diff.txt"
	ScreenshotFile = "failure.png"
)

// uploadConcurrency bounds parallel PutObject calls.
const uploadConcurrency = 4

// Uploader stores one object. *s3client.Client satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
}

// Run is the artifact directory of one replay run.
type Run struct {
	id  string
	dir string

	mu    sync.Mutex
	files []string
}

// NewRun creates root/runID and returns a handle to it.
func NewRun(root, runID string) (*Run, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("artifacts: invalid run id %q", runID)
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", dir, err)
	}
	return &Run{id: runID, dir: dir}, nil
}

// ID returns the run ID.
func (r *Run) ID() string { return r.id }

// Dir returns the run directory.
func (r *Run) Dir() string { return r.dir }

// StatePath is where the browser storage state should be written. The file
// is picked up by Files once it exists.
func (r *Run) StatePath() string { return filepath.Join(r.dir, StateFile) }

// WriteFile writes data to name inside the run directory.
func (r *Run) WriteFile(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("artifacts: invalid file name %q", name)
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	r.mu.Lock()
	if !slices.Contains(r.files, name) {
		r.files = append(r.files, name)
	}
	r.mu.Unlock()
	return nil
}

// WriteReport writes report.json and transcript.txt. When sc is given and
// the observed transcript differs from the expected one, diff.txt is
// written as well.
func (r *Run) WriteReport(report *runner.Report, sc *fixture.Scenario) error {
	data, err := report.JSON()
	if err != nil {
		return fmt.Errorf("artifacts: encode report: %w", err)
	}
	if err := r.WriteFile(ReportFile, data); err != nil {
		return err
	}
	if err := r.WriteFile(TranscriptFile, []byte(report.Transcript())); err != nil {
		return err
	}
	if sc == nil {
		return nil
	}
	diff, err := report.Diff(sc)
	if err != nil {
		return fmt.Errorf("artifacts: diff: %w", err)
	}
	if diff == "" {
		return nil
	}
	return r.WriteFile(DiffFile, []byte(diff))
}

// WriteScreenshot stores a PNG taken at the point of failure.
func (r *Run) WriteScreenshot(png []byte) error {
	if len(png) == 0 {
		return nil
	}
	return r.WriteFile(ScreenshotFile, png)
}

// Files lists the artifact names present in the run directory, sorted.
func (r *Run) Files() []string {
	r.mu.Lock()
	names := slices.Clone(r.files)
	r.mu.Unlock()
	if _, err := os.Stat(r.StatePath()); err == nil && !slices.Contains(names, StateFile) {
		names = append(names, StateFile)
	}
	slices.Sort(names)
	return names
}

// Key returns the object key of name.
func (r *Run) Key(name string) string {
	return r.id + "/" + name
}

// Upload mirrors every artifact to u and returns the keys written. All
// first failure cancels the uploads still in flight and is returned.
func (r *Run) Upload(ctx context.Context, u Uploader) ([]string, error) {
	logger := obs.From(ctx)
	names := r.Files()
	keys := make([]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(r.dir, name))
			if err != nil {
				return fmt.Errorf("artifacts: read %s: %w", name, err)
			}
			key := r.Key(name)
			if err := u.PutObject(gctx, key, data, ContentType(name)); err != nil {
				return err
			}
			keys[i] = key
			logger.Debug("artifact uploaded", "key", key, "bytes", len(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("artifacts: upload run %s: %w", r.id, err)
	}
	logger.Info("artifacts uploaded", "count", len(keys))
	return keys, nil
}

// ContentType maps an artifact name to its MIME type.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
