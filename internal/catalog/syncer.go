// Package catalog keeps the local model directory in step with the
// coordinator's model catalog.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sdminer/internal/common/fsutil"
	"sdminer/internal/coordinator"
	"sdminer/internal/metrics"
	"sdminer/internal/registry"
)

// Source lists and fetches catalog models. *coordinator.Client implements it.
type Source interface {
	Catalog(ctx context.Context, url string) ([]coordinator.CatalogEntry, error)
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Report summarizes one Sync pass.
type Report struct {
	Listed     int
	Present    int
	Downloaded []string
	Failed     map[string]error
}

// Syncer downloads catalog models missing from a local directory.
type Syncer struct {
	src Source
	url string
	dir string
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSyncer returns a Syncer reading the manifest at catalogURL into dir.
func NewSyncer(src Source, catalogURL, dir string, log zerolog.Logger) *Syncer {
	return &Syncer{src: src, url: catalogURL, dir: dir, log: log}
}

// Sync fetches the manifest and downloads every entry not already stored
// locally. A failed download does not stop the others; the returned error
// covers manifest and directory failures only.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := Report{Failed: map[string]error{}}
	dir, err := fsutil.ExpandHome(s.dir)
	if err != nil {
		return rep, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rep, fmt.Errorf("create models dir: %w", err)
	}
	entries, err := s.src.Catalog(ctx, s.url)
	if err != nil {
		metrics.ObserveCatalogSync("error")
		return rep, fmt.Errorf("fetch catalog: %w", err)
	}
	local, err := registry.LoadDir(dir)
	if err != nil {
		metrics.ObserveCatalogSync("error")
		return rep, fmt.Errorf("scan models dir: %w", err)
	}
	rep.Listed = len(entries)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		name, err := fileName(e)
		if err != nil {
			rep.Failed[e.ID] = err
			s.log.Warn().Err(err).Str("model", e.ID).Msg("skipping catalog entry")
			continue
		}
		if _, ok := registry.Find(local, e.ID); ok {
			rep.Present++
			continue
		}
		n, err := s.download(ctx, e, filepath.Join(dir, name))
		if err != nil {
			rep.Failed[e.ID] = err
			metrics.ObserveCatalogDownload("error")
			s.log.Error().Err(err).Str("model", e.ID).Str("url", e.URL).Msg("model download failed")
			continue
		}
		rep.Downloaded = append(rep.Downloaded, e.ID)
		metrics.ObserveCatalogDownload("ok")
		s.log.Info().Str("model", e.ID).Int64("bytes", n).Str("file", name).Msg("model downloaded")
	}
	metrics.ObserveCatalogSync("ok")
	return rep, nil
}

func (s *Syncer) download(ctx context.Context, e coordinator.CatalogEntry, dst string) (int64, error) {
	rc, err := s.src.Download(ctx, e.URL)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := fsutil.WriteAtomic(dst, rc)
	if err != nil {
		return n, err
	}
	if e.Size > 0 && n != e.Size {
		_ = os.Remove(dst)
		return n, fmt.Errorf("size mismatch: got %d bytes, want %d", n, e.Size)
	}
	return n, nil
}

// fileName picks the local file name for e: id plus the extension of the
// explicit file name or the URL path, defaulting to .gguf.
func fileName(e coordinator.CatalogEntry) (string, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid model id %q", e.ID)
	}
	if e.URL == "" {
		return "", fmt.Errorf("model %s has no url", id)
	}
	src := e.File
	if src == "" {
		if u, err := url.Parse(e.URL); err == nil {
			src = path.Base(u.Path)
		}
	}
	ext := strings.ToLower(filepath.Ext(src))
	if !registry.IsModelFile("x" + ext) {
		ext = ".gguf"
	}
	return id + ext, nil
}
