// Package config holds mnb's run configuration: the handful of
// operational knobs a user may set in an optional mnb.yml, plus the
// per-invocation settings derived from CLI flags (working roots, host
// path flavor, dev mode). Modeled on lazydocker's pkg/config/app_config.go
// but trimmed to what an orchestrator, rather than a TUI, needs.
package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/jesseduffield/yaml"
)

// UserConfig holds the rarely-changed operational knobs a user may set
// in mnb.yml. Fields use omitempty so we never write zero values back
// when persisting.
type UserConfig struct {
	// EntryFile is the stage-1 spec document name, relative to the
	// working root. Defaults to "mnb.json".
	EntryFile string `yaml:"entryFile,omitempty"`

	// DefaultRegistryTag is used when an image_name carries no explicit
	// tag, e.g. "bash" pulls "bash:<DefaultRegistryTag>".
	DefaultRegistryTag string `yaml:"defaultRegistryTag,omitempty"`
}

// GetDefaultConfig returns mnb's baked-in defaults, applied before any
// mnb.yml on disk is merged in.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		EntryFile:          "mnb.json",
		DefaultRegistryTag: "latest",
	}
}

// PathFlavor distinguishes how host-side bind-mount sources are
// formatted; in-container paths are always POSIX regardless of this
// setting.
type PathFlavor int

const (
	PathFlavorPOSIX PathFlavor = iota
	PathFlavorWindows
)

// AppConfig is the resolved configuration for one mnb invocation.
type AppConfig struct {
	Version   string
	Commit    string
	BuildDate string
	Debug     bool

	// WorkingRoot is the host directory relative paths in the spec
	// resolve against.
	WorkingRoot string
	// ContainerRoot is the in-container root derived from the flags:
	// "/mnb/run" normally, the working root itself in dev mode. The
	// executor does not read it; bind sources are formed from
	// WorkingRoot and container targets under "/mnb/run".
	ContainerRoot string
	// HostPathFlavor governs formatting of bind-mount sources.
	HostPathFlavor PathFlavor
	// DevMode runs mnb as if it were itself inside /mnb/run, used when
	// developing mnb against a local runtime without a container host.
	DevMode bool

	ConfigDir  string
	UserConfig *UserConfig
}

// NewAppConfig resolves config directory, loads mnb.yml over the
// defaults, and assembles an AppConfig for the given invocation,
// mirroring lazydocker's NewAppConfig.
func NewAppConfig(version, commit, buildDate string, debug bool, workingRoot string, windowsHost bool, devMode bool) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir("mnb")
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	flavor := PathFlavorPOSIX
	if windowsHost {
		flavor = PathFlavorWindows
	}

	containerRoot := "/mnb/run"
	if devMode {
		containerRoot = workingRoot
	}

	return &AppConfig{
		Version:        version,
		Commit:         commit,
		BuildDate:      buildDate,
		Debug:          debug || os.Getenv("DEBUG") == "TRUE",
		WorkingRoot:    workingRoot,
		ContainerRoot:  containerRoot,
		HostPathFlavor: flavor,
		DevMode:        devMode,
		ConfigDir:      configDir,
		UserConfig:     userConfig,
	}, nil
}

func configDir(projectName string) string {
	if envDir := os.Getenv("CONFIG_DIR"); envDir != "" {
		return envDir
	}
	dirs := xdg.New("", projectName)
	return dirs.ConfigHome()
}

func findOrCreateConfigDir(projectName string) (string, error) {
	dir := configDir(projectName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	base := GetDefaultConfig()
	return loadUserConfig(configDir, &base)
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "mnb.yml")

	if _, err := os.Stat(fileName); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return base, nil
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, base); err != nil {
		return nil, err
	}

	return base, nil
}
