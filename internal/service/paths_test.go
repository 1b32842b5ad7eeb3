package service

import (
	"path/filepath"
	"strings"
	"testing"

	"ai-video-cutter/internal/appdirs"
)

func TestResolveRootsUsesOutputDir(t *testing.T) {
	tempDir := t.TempDir()
	originalResolver := appDirsResolver
	t.Cleanup(func() {
		appDirsResolver = originalResolver
	})

	outputDir := filepath.Join(tempDir, "output-root")
	appDirsResolver = func() (appdirs.Paths, error) {
		return appdirs.Paths{
			OutputDir: outputDir,
			CacheDir:  filepath.Join(tempDir, "cache-root"),
		}, nil
	}

	got, err := ResolveRoots("", "")
	if err != nil {
		t.Fatalf("ResolveRoots() returned error: %v", err)
	}

	if want := filepath.Join(outputDir, "uploads"); got.Upload != want {
		t.Fatalf("Upload = %q, want %q", got.Upload, want)
	}
	if want := filepath.Join(outputDir, "processed"); got.Processed != want {
		t.Fatalf("Processed = %q, want %q", got.Processed, want)
	}
	if want := filepath.Join(outputDir, "processed", ".work"); got.Work != want {
		t.Fatalf("Work = %q, want %q", got.Work, want)
	}
}

func TestResolveRootsOverrides(t *testing.T) {
	tempDir := t.TempDir()
	originalResolver := appDirsResolver
	t.Cleanup(func() {
		appDirsResolver = originalResolver
	})
	appDirsResolver = func() (appdirs.Paths, error) {
		return appdirs.Paths{OutputDir: tempDir}, nil
	}

	processed := filepath.Join(tempDir, "elsewhere")
	got, err := ResolveRoots("", processed+string(filepath.Separator))
	if err != nil {
		t.Fatalf("ResolveRoots() returned error: %v", err)
	}
	if got.Processed != processed {
		t.Fatalf("Processed = %q, want %q", got.Processed, processed)
	}
	if got.Work != filepath.Join(processed, ".work") {
		t.Fatalf("Work = %q, want it under the processed override", got.Work)
	}
}

func TestFinalOutputPath(t *testing.T) {
	got := finalOutputPath("/data/processed", "vid", "task", "/data/uploads/vid.MOV")
	if want := filepath.Join("/data/processed", "final_vid_task.mov"); got != want {
		t.Fatalf("finalOutputPath() = %q, want %q", got, want)
	}
	got = finalOutputPath("/data/processed", "vid", "task", "/data/uploads/vid")
	if !strings.HasSuffix(got, ".mp4") {
		t.Fatalf("finalOutputPath() = %q, want .mp4 fallback", got)
	}
}

func TestEnsureWithinRejectsOutsideRoot(t *testing.T) {
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "processed")

	if _, err := ensureWithin(root, filepath.Join(root, "final_a_b.mp4")); err != nil {
		t.Fatalf("ensureWithin() returned error for path inside root: %v", err)
	}

	_, err := ensureWithin(root, filepath.Join(tempDir, "uploads", "x.mp4"))
	if err == nil {
		t.Fatal("ensureWithin() returned nil error for path outside root")
	}
	if !strings.Contains(err.Error(), "outside root") {
		t.Fatalf("ensureWithin() error = %q, want containing %q", err.Error(), "outside root")
	}
}
