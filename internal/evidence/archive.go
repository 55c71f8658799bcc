package evidence

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
)

// DefaultMaxAge is how long archived bundles are kept before Sweep removes
// them.
const DefaultMaxAge = 30 * 24 * time.Hour

// scanDirLayout names per-scan directories after the scan start time.
const scanDirLayout = "20060102T150405Z"

// Archive persists evidence bundles under a directory tree:
//
//	<dir>/<scan-start>/<fingerprint>/incident.json
//	<dir>/<scan-start>/<fingerprint>/<artifact>.json
//	<dir>/<scan-start>/<fingerprint>.tar.gz   (when packing is on)
//
// Writing is best-effort relative to the scan: a failed write is returned
// to the caller for logging but never mutates the scan result.
type Archive struct {
	dir    string
	pack   bool
	maxAge time.Duration
}

// NewArchive builds an archive rooted at dir. A zero maxAge takes
// DefaultMaxAge.
func NewArchive(dir string, pack bool, maxAge time.Duration) *Archive {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Archive{dir: dir, pack: pack, maxAge: maxAge}
}

// Write persists every evidence bundle carried by the scan result. It keeps
// going past individual bundle failures and returns the first error seen.
func (a *Archive) Write(res *incident.ScanResult) error {
	scanDir := filepath.Join(a.dir, res.StartedAt.UTC().Format(scanDirLayout))

	var firstErr error
	for i := range res.Incidents {
		inc := &res.Incidents[i]
		if inc.Evidence == nil {
			continue
		}
		if err := a.writeBundle(scanDir, inc); err != nil {
			slog.Warn("evidence write failed", "fingerprint", inc.Fingerprint, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Archive) writeBundle(scanDir string, inc *incident.Incident) error {
	bundleDir := filepath.Join(scanDir, inc.Fingerprint)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	manifest, err := json.MarshalIndent(inc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "incident.json"), manifest, 0o644); err != nil {
		return fmt.Errorf("write incident.json: %w", err)
	}

	for _, art := range inc.Evidence.Artifacts {
		path := filepath.Join(bundleDir, art.Name+".json")
		if err := os.WriteFile(path, art.Data, 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", art.Name, err)
		}
	}

	if a.pack {
		if err := packBundle(bundleDir, bundleDir+".tar.gz"); err != nil {
			return fmt.Errorf("pack bundle: %w", err)
		}
	}

	slog.Debug("evidence bundle written", "fingerprint", inc.Fingerprint, "dir", bundleDir)
	return nil
}

// Sweep removes per-scan directories (and their packed bundles) older than
// the retention age. Entries whose names do not parse as scan timestamps
// are left alone. It returns how many scan trees were removed.
func (a *Archive) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read evidence dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		started, err := time.Parse(scanDirLayout, entry.Name())
		if err != nil {
			continue
		}
		if now.Sub(started) <= a.maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		slog.Info("evidence swept", "removed", removed, "max_age", a.maxAge)
	}
	return removed, nil
}

// packBundle writes the bundle directory's files into a tar.gz next to it.
func packBundle(dir, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	base := filepath.Base(dir)
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
