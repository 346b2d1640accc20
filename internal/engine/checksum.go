package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	processedSuffix   = "_processed"
	processedLayout   = "20060102_150405"
	maxRenameAttempts = 1000
)

// Checksum returns the hex SHA-256 digest and size of the file at path.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ProcessedName derives the post-processing name for name at the given time:
// base_YYYYMMDD_HHMMSS_processed.ext. A non-zero attempt inserts a counter
// before the suffix to disambiguate renames within the same second.
func ProcessedName(name string, at time.Time, attempt int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	stamp := at.Format(processedLayout)
	if attempt > 0 {
		stamp += "_" + strconv.Itoa(attempt)
	}

	return base + "_" + stamp + processedSuffix + ext
}

// RenameProcessed renames the file at path in place to its processed name,
// skipping candidates that already exist. It returns the new path.
func RenameProcessed(path string, at time.Time) (string, error) {
	dir, name := filepath.Split(path)

	for attempt := range maxRenameAttempts {
		target := filepath.Join(dir, ProcessedName(name, at, attempt))

		if _, err := os.Lstat(target); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", target, err)
		}

		if err := os.Rename(path, target); err != nil {
			return "", fmt.Errorf("rename %s: %w", path, err)
		}
		return target, nil
	}

	return "", fmt.Errorf("rename %s: no free name after %d attempts", path, maxRenameAttempts)
}
