package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"ai-video-cutter/internal/appdirs"
)

var appDirsResolver = appdirs.Resolve

// Roots groups the directories the service writes to.
type Roots struct {
	Upload    string
	Processed string
	Work      string
}

// ResolveRoots derives the directory layout from the app dirs. Non-empty
// overrides replace the upload and processed roots.
func ResolveRoots(uploadOverride, processedOverride string) (Roots, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return Roots{}, err
	}
	roots := Roots{
		Upload:    appdirs.UploadRootFor(dirs),
		Processed: appdirs.ProcessedRootFor(dirs),
		Work:      appdirs.WorkRootFor(dirs),
	}
	if v := strings.TrimSpace(uploadOverride); v != "" {
		roots.Upload = filepath.Clean(v)
	}
	if v := strings.TrimSpace(processedOverride); v != "" {
		roots.Processed = filepath.Clean(v)
		roots.Work = filepath.Join(roots.Processed, "."+appdirs.WorkRootName)
	}
	return roots, nil
}

// finalOutputPath names the output of one finalize submission. The task id
// keeps repeated finalizes of a video apart.
func finalOutputPath(processedRoot, videoID, taskID, sourcePath string) string {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(processedRoot, fmt.Sprintf("final_%s_%s%s", videoID, taskID, ext))
}

// uploadPath names the stored copy of an uploaded file.
func uploadPath(uploadRoot, videoID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(uploadRoot, videoID+ext)
}

// ensureWithin returns the cleaned path if it lives under root.
func ensureWithin(root, path string) (string, error) {
	cleanedRoot := filepath.Clean(root)
	cleaned := filepath.Clean(path)
	rel, err := filepath.Rel(cleanedRoot, cleaned)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == "" {
		return "", fmt.Errorf("path %q is not a file path", path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside root %q", path, root)
	}
	return cleaned, nil
}
