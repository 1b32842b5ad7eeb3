// Package deps locates the external media binaries and reports their status.
package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type DependencyTier string

// Both media binaries are must-have.
const DependencyTierMust DependencyTier = "must"

type DependencyStatus string

const (
	DependencyStatusOK      DependencyStatus = "ok"
	DependencyStatusMissing DependencyStatus = "missing"
	DependencyStatusError   DependencyStatus = "error"
)

type DependencySource string

const (
	DependencySourceStorage  DependencySource = "storage"
	DependencySourceLookPath DependencySource = "lookpath"
)

type DependencySpec struct {
	ID          string
	Name        string
	Command     string
	Tier        DependencyTier
	StoragePath string
	Hint        string
}

type DependencyState struct {
	DependencySpec
	ResolvedPath string
	Status       DependencyStatus
	Source       DependencySource
	Error        string
}

type PathResolver struct {
	LookPath func(file string) (string, error)
	AbsPath  func(path string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewPathResolver() PathResolver {
	return PathResolver{
		LookPath: exec.LookPath,
		AbsPath:  filepath.Abs,
		Stat:     os.Stat,
	}
}

func (r PathResolver) Resolve(spec DependencySpec) DependencyState {
	state := DependencyState{DependencySpec: spec}
	configured := strings.TrimSpace(spec.StoragePath)

	if configured != "" {
		state.Source = DependencySourceStorage
		resolvedPath, err := r.resolveConfiguredPath(configured)
		if err == nil {
			state.Status = DependencyStatusOK
			state.ResolvedPath = resolvedPath
			return state
		}

		if absPath, absErr := r.AbsPath(configured); absErr == nil {
			state.ResolvedPath = absPath
		} else {
			state.ResolvedPath = configured
		}
		state.Error = err.Error()
		if isMissingPathError(err) {
			state.Status = DependencyStatusMissing
		} else {
			state.Status = DependencyStatusError
		}
		return state
	}

	state.Source = DependencySourceLookPath
	resolvedPath, err := r.LookPath(spec.Command)
	if err == nil {
		state.Status = DependencyStatusOK
		state.ResolvedPath = resolvedPath
		return state
	}

	state.Error = err.Error()
	if isMissingPathError(err) {
		state.Status = DependencyStatusMissing
		return state
	}
	state.Status = DependencyStatusError
	return state
}

func (r PathResolver) resolveConfiguredPath(configuredPath string) (string, error) {
	if resolvedPath, err := r.LookPath(configuredPath); err == nil {
		return resolvedPath, nil
	}

	absPath, err := r.AbsPath(configuredPath)
	if err != nil {
		return "", err
	}
	if _, err = r.Stat(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func ResolveDependencyStates(specs []DependencySpec, resolver PathResolver) []DependencyState {
	resolved := make([]DependencyState, 0, len(specs))
	for _, spec := range specs {
		resolved = append(resolved, resolver.Resolve(spec))
	}
	return resolved
}

// MediaPaths are the configured binaries; a bare command name is looked up
// on PATH.
type MediaPaths struct {
	Ffmpeg  string
	Ffprobe string
}

func ResolveDependencyInventory(paths MediaPaths) []DependencyState {
	return ResolveDependencyStates(BuildDependencyInventory(paths), NewPathResolver())
}

func BuildDependencyInventory(paths MediaPaths) []DependencySpec {
	return []DependencySpec{
		{
			ID:          "ffmpeg",
			Name:        "ffmpeg",
			Command:     "ffmpeg",
			Tier:        DependencyTierMust,
			StoragePath: configuredPath(paths.Ffmpeg, "ffmpeg"),
			Hint:        "Required for segment extraction and concatenation.",
		},
		{
			ID:          "ffprobe",
			Name:        "ffprobe",
			Command:     "ffprobe",
			Tier:        DependencyTierMust,
			StoragePath: configuredPath(paths.Ffprobe, "ffprobe"),
			Hint:        "Required for probing video duration.",
		},
	}
}

// CheckDependency fails when a must-have dependency is not usable.
func CheckDependency(states []DependencyState) error {
	var missing []string
	for _, state := range states {
		if state.Tier == DependencyTierMust && state.Status != DependencyStatusOK {
			missing = append(missing, state.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required dependencies unavailable: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Resolved returns the resolved path of id, or fallback when it is unknown.
func Resolved(states []DependencyState, id, fallback string) string {
	for _, state := range states {
		if state.ID == id && state.Status == DependencyStatusOK && state.ResolvedPath != "" {
			return state.ResolvedPath
		}
	}
	return fallback
}

// configuredPath drops the plain command name so it resolves through PATH.
func configuredPath(configured, command string) string {
	configured = strings.TrimSpace(configured)
	if configured == command {
		return ""
	}
	return configured
}

func FormatDependencyReport(states []DependencyState) string {
	if len(states) == 0 {
		return "No dependencies to diagnose."
	}

	var builder strings.Builder
	builder.WriteString("Dependency status")

	for _, state := range states {
		resolvedPath := strings.TrimSpace(state.ResolvedPath)
		if resolvedPath == "" {
			resolvedPath = "unknown"
		}

		source := strings.TrimSpace(string(state.Source))
		if source == "" {
			source = "n/a"
		}

		builder.WriteString("\n")
		builder.WriteString(fmt.Sprintf("- %s [%s]: %s | path=%s | source=%s", state.Name, strings.ToUpper(string(state.Tier)), state.Status, resolvedPath, source))
		if state.Error != "" {
			builder.WriteString("\n")
			builder.WriteString("  error: ")
			builder.WriteString(state.Error)
		}
		if state.Hint != "" {
			builder.WriteString("\n")
			builder.WriteString("  hint: ")
			builder.WriteString(state.Hint)
		}
	}

	return builder.String()
}

func isMissingPathError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return true
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, os.ErrNotExist) {
			return true
		}
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		if errors.Is(execErr.Err, exec.ErrNotFound) {
			return true
		}
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "not found") || strings.Contains(message, "cannot find")
}
