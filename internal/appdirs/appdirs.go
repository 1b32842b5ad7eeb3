package appdirs

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	PortableEnv = "VIDEOCUTTER_PORTABLE"
	HomeEnv     = "VIDEOCUTTER_HOME"

	configFileName = "config.toml"
)

type Paths struct {
	Portable   bool
	ConfigDir  string
	ConfigFile string
	LogDir     string
	OutputDir  string
	CacheDir   string
}

type resolveDeps struct {
	getenv     func(string) string
	executable func() (string, error)
}

func Resolve() (Paths, error) {
	return resolve(resolveDeps{
		getenv:     os.Getenv,
		executable: os.Executable,
	})
}

// ResolveWithExecutable resolves as if the binary lived at executablePath.
func ResolveWithExecutable(executablePath string) (Paths, error) {
	return resolve(resolveDeps{
		getenv:     os.Getenv,
		executable: func() (string, error) { return executablePath, nil },
	})
}

func resolve(rawDeps resolveDeps) (Paths, error) {
	deps := withDefaults(rawDeps)
	if isPortableEnabled(deps.getenv(PortableEnv)) {
		return resolvePortable(deps)
	}
	if home := strings.TrimSpace(deps.getenv(HomeEnv)); home != "" {
		return rootedPaths(filepath.Clean(home), false), nil
	}
	return defaultPaths(), nil
}

func withDefaults(deps resolveDeps) resolveDeps {
	if deps.getenv == nil {
		deps.getenv = os.Getenv
	}
	if deps.executable == nil {
		deps.executable = os.Executable
	}
	return deps
}

func resolvePortable(deps resolveDeps) (Paths, error) {
	executablePath, err := deps.executable()
	if err != nil {
		return Paths{}, err
	}
	return rootedPaths(filepath.Join(filepath.Dir(executablePath), "data"), true), nil
}

func rootedPaths(root string, portable bool) Paths {
	configDir := filepath.Join(root, "config")
	return Paths{
		Portable:   portable,
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, configFileName),
		LogDir:     filepath.Join(root, "logs"),
		OutputDir:  filepath.Join(root, "output"),
		CacheDir:   filepath.Join(root, "cache"),
	}
}

func defaultPaths() Paths {
	configDir := "config"
	return Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, configFileName),
		LogDir:     ".",
		OutputDir:  ".",
		CacheDir:   "cache",
	}
}

func isPortableEnabled(value string) bool {
	normalized := strings.TrimSpace(strings.ToLower(value))
	return normalized == "1" || normalized == "true"
}
