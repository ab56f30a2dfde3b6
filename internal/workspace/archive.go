package workspace

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/models"
)

// extractTarGz unpacks a gzip-compressed tar stream into destDir,
// enforcing the archive extraction policy of spec.md §4.1: a
// progressively-measured decompressed-size quota, path-traversal defense,
// extension/blocklist filtering, and a file-count quota.
func extractTarGz(buf []byte, destDir string, quotas Quotas) error {
	gz, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return models.NewAppError(models.ErrWorkspace, "invalid gzip payload", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	var totalSize int64
	fileCount := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.NewAppError(models.ErrWorkspace, "corrupt tar stream", err)
		}

		if hdr.Typeflag != tar.TypeReg {
			// Symlinks, devices, and hardlinks carry no data section in the
			// stream, so there is nothing to measure or discard.
			continue
		}

		// Every regular entry's decompressed size counts against the quota
		// before we look at whether it's actually going to be written out —
		// an oversized entry that fails the allowlist or path check still
		// has to be read off the gzip stream to reach the next header, and
		// a crafted archive can put its bomb entry there specifically to
		// dodge the quota.
		if !admissible(hdr.Name) {
			logger.Debugf("dropping archive entry %s: not on allowlist or blocklisted", hdr.Name)
			n, err := discardEntry(tr, quotas.MaxArchiveBytes-totalSize)
			totalSize += n
			if err != nil {
				return err
			}
			if totalSize > quotas.MaxArchiveBytes {
				return models.NewAppError(models.ErrContentTooLarge,
					fmt.Sprintf("decompressed archive exceeds the %d byte quota", quotas.MaxArchiveBytes), nil)
			}
			continue
		}

		targetPath, ok := safeJoin(destDir, hdr.Name)
		if !ok {
			logger.Warnf("dropping archive entry %s: resolves outside workspace", hdr.Name)
			n, err := discardEntry(tr, quotas.MaxArchiveBytes-totalSize)
			totalSize += n
			if err != nil {
				return err
			}
			if totalSize > quotas.MaxArchiveBytes {
				return models.NewAppError(models.ErrContentTooLarge,
					fmt.Sprintf("decompressed archive exceeds the %d byte quota", quotas.MaxArchiveBytes), nil)
			}
			continue
		}

		fileCount++
		if fileCount > quotas.MaxFileCount {
			return models.NewAppError(models.ErrContentTooLarge,
				fmt.Sprintf("archive exceeds the %d file quota", quotas.MaxFileCount), nil)
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return models.NewAppError(models.ErrWorkspace, "failed to create extraction directory", err)
		}

		written, err := extractOne(tr, targetPath, quotas.MaxArchiveBytes-totalSize)
		if err != nil {
			return err
		}
		totalSize += written

		if totalSize > quotas.MaxArchiveBytes {
			return models.NewAppError(models.ErrContentTooLarge,
				fmt.Sprintf("decompressed archive exceeds the %d byte quota", quotas.MaxArchiveBytes), nil)
		}
	}

	return nil
}

// discardEntry reads off (and counts) the decompressed bytes of a tar entry
// that won't be written to disk, so the running size total still reflects
// every byte the gzip stream produced, not just the bytes that were kept.
func discardEntry(tr *tar.Reader, limit int64) (int64, error) {
	if limit < 0 {
		limit = 0
	}
	n, err := io.Copy(io.Discard, io.LimitReader(tr, limit+1))
	if err != nil {
		return n, models.NewAppError(models.ErrWorkspace, "failed reading archive entry", err)
	}
	return n, nil
}

// extractOne copies at most limit+1 bytes from tr into targetPath,
// returning the number of bytes actually written. The caller compares the
// running total against the quota after each entry so the abort happens
// mid-stream rather than only after a fully-buffered read.
func extractOne(tr *tar.Reader, targetPath string, limit int64) (int64, error) {
	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, models.NewAppError(models.ErrWorkspace, "failed to create extracted file", err)
	}
	defer f.Close()

	if limit < 0 {
		limit = 0
	}

	written, err := io.Copy(f, io.LimitReader(tr, limit+1))
	if err != nil {
		return written, models.NewAppError(models.ErrWorkspace, "failed writing extracted file", err)
	}
	return written, nil
}

// admissible reports whether a tar entry's relative path passes the
// extension allowlist and blocklist-segment checks.
func admissible(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if _, blocked := BlockedSegments[seg]; blocked {
			return false
		}
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	_, allowed := ExtensionAllowlist[ext]
	return allowed
}

// safeJoin resolves entryPath against base and reports whether the result
// remains strictly inside base, defending against "../" path traversal in
// archive entries.
func safeJoin(base, entryPath string) (string, bool) {
	cleaned := filepath.Clean(filepath.Join(base, entryPath))
	baseWithSep := filepath.Clean(base) + string(os.PathSeparator)
	if !strings.HasPrefix(cleaned+string(os.PathSeparator), baseWithSep) {
		return "", false
	}
	return cleaned, true
}
