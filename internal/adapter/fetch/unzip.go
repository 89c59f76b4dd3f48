package fetch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks every file in the zip archive into destDir and returns the
// paths written. Entries that would land outside destDir are rejected.
func Extract(archive, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", archive, err)
	}
	defer r.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", destDir, err)
	}

	var paths []string
	for _, f := range r.File {
		target := filepath.Join(root, f.Name) //nolint:gosec // checked below
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("zip entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", target, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, err
		}
		paths = append(paths, target)
	}
	return paths, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", target, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil { //nolint:gosec // archives come from fixed publisher URLs
		dst.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

// Extract unpacks archive into destDir. See the package-level Extract.
func (c *Client) Extract(archive, destDir string) ([]string, error) {
	paths, err := Extract(archive, destDir)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("extracted", "path", archive, "files", len(paths))
	return paths, nil
}
