package appdirs

import (
	"path/filepath"
	"strings"
)

const (
	UploadRootName    = "uploads"
	ProcessedRootName = "processed"
	WorkRootName      = "work"
	dbFileName        = "video-cutter.db"
)

func UploadRootFor(paths Paths) string {
	return filepath.Join(normalizeOutputDir(paths.OutputDir), UploadRootName)
}

func ProcessedRootFor(paths Paths) string {
	return filepath.Join(normalizeOutputDir(paths.OutputDir), ProcessedRootName)
}

// WorkRootFor holds job-scoped temporary directories. It lives next to the
// processed outputs so finished files can be renamed into place.
func WorkRootFor(paths Paths) string {
	return filepath.Join(ProcessedRootFor(paths), "."+WorkRootName)
}

func DBPathFor(paths Paths) string {
	return filepath.Join(normalizeCacheDir(paths.CacheDir), dbFileName)
}

func ResolveUploadRoot() (string, error) {
	paths, err := Resolve()
	if err != nil {
		return "", err
	}
	return UploadRootFor(paths), nil
}

func ResolveProcessedRoot() (string, error) {
	paths, err := Resolve()
	if err != nil {
		return "", err
	}
	return ProcessedRootFor(paths), nil
}

func ResolveDBPath() (string, error) {
	paths, err := Resolve()
	if err != nil {
		return "", err
	}
	return DBPathFor(paths), nil
}

func normalizeOutputDir(outputDir string) string {
	cleaned := strings.TrimSpace(outputDir)
	if cleaned == "" {
		return "."
	}
	return filepath.Clean(cleaned)
}

func normalizeCacheDir(cacheDir string) string {
	cleaned := strings.TrimSpace(cacheDir)
	if cleaned == "" {
		return "cache"
	}
	return filepath.Clean(cleaned)
}
