package rxnorm

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/giygas/ndc-unii/logging"
)

// ErrMissingFiles is wrapped when tables are missing and downloads are disabled
var ErrMissingFiles = errors.New("missing RxNorm RRF files")

// Downloader fetches the release archive and extracts the RRF tables
type Downloader struct {
	URL    string
	Client *http.Client
}

// NewDownloader creates a downloader for the given archive URL
func NewDownloader(url string) *Downloader {
	return &Downloader{
		URL: url,
		Client: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

// EnsureFiles returns the table paths under dir, downloading and extracting
// the release first when any of them is missing
func (d *Downloader) EnsureFiles(ctx context.Context, dir string, skipDownload bool) (Paths, error) {
	paths := PathsIn(dir)
	missing := paths.Missing()
	if len(missing) == 0 {
		return paths, nil
	}

	if skipDownload {
		return paths, fmt.Errorf("%w: %s (download %s and extract the rrf directory to %s)",
			ErrMissingFiles, strings.Join(missing, ", "), d.URL, dir)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return paths, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	archive := filepath.Join(dir, "release.zip")
	logging.Info("Downloading RxNorm release", "url", d.URL, "to", archive)
	if err := d.download(ctx, archive); err != nil {
		return paths, err
	}
	defer func() {
		if err := os.Remove(archive); err != nil {
			logging.Warn("Failed to remove release archive", "path", archive, "error", err)
		}
	}()

	logging.Info("Extracting RRF tables", "archive", archive)
	if err := ExtractTables(archive, dir); err != nil {
		return paths, err
	}

	paths = PathsIn(dir)
	if missing := paths.Missing(); len(missing) > 0 {
		return paths, fmt.Errorf("%w after download: %s", ErrMissingFiles, strings.Join(missing, ", "))
	}
	logging.Info("RxNorm files ready", "dir", dir)
	return paths, nil
}

func (d *Downloader) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", d.URL, err)
	}

	response, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", d.URL, err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", d.URL, response.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dest, err)
	}

	written, err := io.Copy(out, response.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	logging.Debug("Release archive downloaded", "bytes", written)
	return nil
}

// ExtractTables copies the three RRF tables out of a release archive into dir,
// wherever they sit inside the archive
func ExtractTables(archive, dir string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logging.Warn("Failed to close archive", "error", err)
		}
	}()

	wanted := map[string]bool{ConceptsFile: true, RelationshipsFile: true, AttributesFile: true}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		// Only the base name is used, so entries cannot escape dir
		name := filepath.Base(filepath.Clean(file.Name))
		if !wanted[name] {
			continue
		}
		if err := extractFile(file, filepath.Join(dir, name)); err != nil {
			return err
		}
		logging.Debug("Extracted table", "name", name)
	}

	return nil
}

func extractFile(file *zip.File, dest string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.Warn("Failed to close archive entry", "error", err)
		}
	}()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dest, err)
	}

	// #nosec G110 -- archive comes from the configured release URL
	_, err = io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return nil
}
