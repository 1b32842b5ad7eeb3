package deps

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func notFoundErr(command string) error {
	return &exec.Error{Name: command, Err: exec.ErrNotFound}
}

func TestPathResolverResolvePrefersStoragePath(t *testing.T) {
	binPath := filepath.Join(t.TempDir(), "ffmpeg-custom")
	if err := os.WriteFile(binPath, []byte("ffmpeg"), 0o755); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}

	state := resolver.Resolve(DependencySpec{
		Name:        "ffmpeg",
		Command:     "ffmpeg",
		StoragePath: binPath,
	})

	if state.Status != DependencyStatusOK {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusOK)
	}
	if state.Source != DependencySourceStorage {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceStorage)
	}
	if state.ResolvedPath != binPath {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, binPath)
	}
}

func TestPathResolverResolveFallsBackToLookPath(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		if file != "ffmpeg" {
			t.Fatalf("LookPath() received %q, want %q", file, "ffmpeg")
		}
		return "/mock/bin/ffmpeg", nil
	}

	state := resolver.Resolve(DependencySpec{Name: "ffmpeg", Command: "ffmpeg"})

	if state.Status != DependencyStatusOK {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusOK)
	}
	if state.Source != DependencySourceLookPath {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceLookPath)
	}
	if state.ResolvedPath != "/mock/bin/ffmpeg" {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, "/mock/bin/ffmpeg")
	}
}

func TestPathResolverResolveReportsMissingWhenNotFound(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}

	state := resolver.Resolve(DependencySpec{Name: "ffmpeg", Command: "ffmpeg"})

	if state.Status != DependencyStatusMissing {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusMissing)
	}
	if state.Source != DependencySourceLookPath {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceLookPath)
	}
	if state.ResolvedPath != "" {
		t.Fatalf("state.ResolvedPath = %q, want empty", state.ResolvedPath)
	}
	if state.Error == "" {
		t.Fatalf("state.Error should not be empty")
	}
}

func TestPathResolverResolveConfiguredMissingReturnsMissing(t *testing.T) {
	missingPath := filepath.Join(t.TempDir(), "missing-ffmpeg")

	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}

	state := resolver.Resolve(DependencySpec{
		Name:        "ffmpeg",
		Command:     "ffmpeg",
		StoragePath: missingPath,
	})

	if state.Status != DependencyStatusMissing {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusMissing)
	}
	if state.Source != DependencySourceStorage {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceStorage)
	}
	if state.ResolvedPath != missingPath {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, missingPath)
	}
	if state.Error == "" {
		t.Fatalf("state.Error should not be empty")
	}
}

func TestPathResolverResolveConfiguredStatFailureReturnsError(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		return "", notFoundErr(file)
	}
	resolver.AbsPath = func(path string) (string, error) {
		return "/mock/configured/path", nil
	}
	resolver.Stat = func(name string) (os.FileInfo, error) {
		if name != "/mock/configured/path" {
			t.Fatalf("Stat() received %q, want %q", name, "/mock/configured/path")
		}
		return nil, errors.New("permission denied")
	}

	state := resolver.Resolve(DependencySpec{
		Name:        "ffmpeg",
		Command:     "ffmpeg",
		StoragePath: "ignored",
	})

	if state.Status != DependencyStatusError {
		t.Fatalf("state.Status = %q, want %q", state.Status, DependencyStatusError)
	}
	if state.Source != DependencySourceStorage {
		t.Fatalf("state.Source = %q, want %q", state.Source, DependencySourceStorage)
	}
	if state.ResolvedPath != "/mock/configured/path" {
		t.Fatalf("state.ResolvedPath = %q, want %q", state.ResolvedPath, "/mock/configured/path")
	}
	if !strings.Contains(state.Error, "permission denied") {
		t.Fatalf("state.Error = %q, want to contain %q", state.Error, "permission denied")
	}
}

func TestBuildDependencyInventoryUsesConfiguredPaths(t *testing.T) {
	specs := BuildDependencyInventory(MediaPaths{Ffmpeg: "ffmpeg", Ffprobe: "/opt/ffmpeg/bin/ffprobe"})

	ffmpeg, ok := findDependencySpec(specs, "ffmpeg")
	if !ok {
		t.Fatalf("ffmpeg spec not found")
	}
	if ffmpeg.StoragePath != "" {
		t.Fatalf("ffmpeg.StoragePath = %q, want empty for bare command", ffmpeg.StoragePath)
	}

	ffprobe, ok := findDependencySpec(specs, "ffprobe")
	if !ok {
		t.Fatalf("ffprobe spec not found")
	}
	if ffprobe.StoragePath != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("ffprobe.StoragePath = %q", ffprobe.StoragePath)
	}
	if ffprobe.Tier != DependencyTierMust {
		t.Fatalf("ffprobe.Tier = %q, want %q", ffprobe.Tier, DependencyTierMust)
	}
}

func TestCheckDependencyReportsMissingMust(t *testing.T) {
	resolver := NewPathResolver()
	resolver.LookPath = func(file string) (string, error) {
		if file == "ffmpeg" {
			return "/usr/bin/ffmpeg", nil
		}
		return "", notFoundErr(file)
	}
	states := ResolveDependencyStates(BuildDependencyInventory(MediaPaths{}), resolver)

	err := CheckDependency(states)
	if err == nil || !strings.Contains(err.Error(), "ffprobe") {
		t.Fatalf("CheckDependency() = %v, want error naming ffprobe", err)
	}
	if got := Resolved(states, "ffmpeg", "ffmpeg"); got != "/usr/bin/ffmpeg" {
		t.Fatalf("Resolved(ffmpeg) = %q", got)
	}
	if got := Resolved(states, "ffprobe", "ffprobe"); got != "ffprobe" {
		t.Fatalf("Resolved(ffprobe) = %q, want fallback", got)
	}

	report := FormatDependencyReport(states)
	if !strings.Contains(report, "ffprobe [MUST]: missing") {
		t.Fatalf("report missing ffprobe line:\n%s", report)
	}
}

func findDependencySpec(specs []DependencySpec, id string) (DependencySpec, bool) {
	for _, spec := range specs {
		if spec.ID == id {
			return spec, true
		}
	}
	return DependencySpec{}, false
}
