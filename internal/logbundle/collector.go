package logbundle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunnelkit/support/internal/support"
)

const (
	bundlePrefix    = "report-"
	bundleExtension = ".zip"
	manifestName    = "manifest.json"

	// DefaultMaxBytes is how much of the tail of each log file is kept.
	DefaultMaxBytes = 5 << 20
)

// ErrOutsideBundleDir is returned when a handle does not point into the bundle directory.
var ErrOutsideBundleDir = errors.New("logbundle: path outside bundle directory")

// Manifest describes a bundle. It never contains the redacted values.
type Manifest struct {
	BundleID   string      `json:"bundleId"`
	CreatedAt  time.Time   `json:"createdAt"`
	OS         string      `json:"os"`
	Arch       string      `json:"arch"`
	Files      []FileEntry `json:"files"`
	Redactions int         `json:"redactions"`
}

// FileEntry is one log file inside a bundle.
type FileEntry struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Collector gathers the application's log files into a redacted zip bundle.
// It implements support.Collector; the handle it returns is the bundle path.
type Collector struct {
	logDir    string
	bundleDir string
	maxBytes  int64
	patterns  []Pattern
	now       func() time.Time
}

// New returns a Collector reading *.log files from logDir and writing bundles
// to bundleDir, which is created if missing.
func New(logDir, bundleDir string, maxBytes int64) (*Collector, error) {
	if bundleDir == "" {
		return nil, errors.New("logbundle: bundle directory is required")
	}
	abs, err := filepath.Abs(bundleDir)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create bundle directory %s: %w", abs, err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Collector{
		logDir:    logDir,
		bundleDir: abs,
		maxBytes:  maxBytes,
		patterns:  DefaultPatterns(),
		now:       time.Now,
	}, nil
}

// BundleDir returns the absolute directory bundles are written to.
func (c *Collector) BundleDir() string {
	return c.bundleDir
}

// CollectLog writes a new bundle with every occurrence of the redact tokens and
// of the default patterns replaced.
func (c *Collector) CollectLog(ctx context.Context, redact []string) (support.Handle, error) {
	files, err := c.logFiles()
	if err != nil {
		return "", err
	}

	r := NewRedactor(redact, c.patterns)
	id := uuid.NewString()
	manifest := Manifest{
		BundleID:  id,
		CreatedAt: c.now().UTC(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Files:     []FileEntry{},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		content, truncated, err := readTail(path, c.maxBytes)
		if err != nil {
			return "", err
		}
		clean := r.Redact(content)

		name := filepath.Base(path)
		if err := writeZipEntry(zw, name, c.now(), []byte(clean)); err != nil {
			return "", err
		}
		manifest.Files = append(manifest.Files, FileEntry{Name: name, Size: len(clean), Truncated: truncated})
	}

	manifest.Redactions = r.Count()
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeZipEntry(zw, manifestName, c.now(), raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish bundle: %w", err)
	}

	path := filepath.Join(c.bundleDir, bundlePrefix+id+bundleExtension)
	size := buf.Len()
	if err := writeAtomic(path, &buf); err != nil {
		return "", err
	}

	slog.Info("logbundle: collected",
		"bundle_id", id,
		"files", len(manifest.Files),
		"redactions", manifest.Redactions,
		"size", size,
	)
	return support.Handle(path), nil
}

// Open opens the bundle behind h for reading.
func (c *Collector) Open(h support.Handle) (io.ReadCloser, error) {
	path, err := c.resolve(h)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	return f, nil
}

// Prune removes bundles last modified before now-olderThan and returns how many
// were deleted.
func (c *Collector) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(c.bundleDir)
	if err != nil {
		return 0, fmt.Errorf("list bundle directory: %w", err)
	}
	cutoff := c.now().Add(-olderThan)

	deleted := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !isBundle(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.bundleDir, entry.Name())); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", entry.Name(), err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (c *Collector) resolve(h support.Handle) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(string(h)))
	if err != nil {
		return "", fmt.Errorf("resolve bundle path: %w", err)
	}
	if filepath.Dir(abs) != c.bundleDir {
		return "", ErrOutsideBundleDir
	}
	name := filepath.Base(abs)
	if !strings.HasPrefix(name, bundlePrefix) || !strings.HasSuffix(name, bundleExtension) {
		return "", ErrOutsideBundleDir
	}
	return abs, nil
}

// logFiles lists *.log files in the log directory, sorted by name. A missing
// directory yields no files.
func (c *Collector) logFiles() ([]string, error) {
	if c.logDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.logDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list log directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		files = append(files, filepath.Join(c.logDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// readTail returns at most max bytes from the end of the file. A truncated read
// starts at the first full line so no token is split at the cut.
func readTail(path string, max int64) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("open log %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", false, fmt.Errorf("stat log %s: %w", filepath.Base(path), err)
	}

	truncated := info.Size() > max
	if truncated {
		if _, err := f.Seek(info.Size()-max, io.SeekStart); err != nil {
			return "", false, fmt.Errorf("seek log %s: %w", filepath.Base(path), err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil {
		return "", false, fmt.Errorf("read log %s: %w", filepath.Base(path), err)
	}
	if truncated {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}
	return string(data), truncated, nil
}

func writeZipEntry(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("add %s to bundle: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s to bundle: %w", name, err)
	}
	return nil
}

// writeAtomic streams r into a temporary file next to path and renames it into
// place. The temporary file never survives a failed write.
func writeAtomic(path string, r io.Reader) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, r); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err = f.Chmod(0o640); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize bundle: %w", err)
	}
	return nil
}

func isBundle(entry os.DirEntry) bool {
	name := entry.Name()
	return entry.Type().IsRegular() && strings.HasPrefix(name, bundlePrefix) && strings.HasSuffix(name, bundleExtension)
}
