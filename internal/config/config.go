// Package config handles envboot.yaml loading and defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file looked up at the project root.
const FileName = "envboot.yaml"

// Missing-path policies for the SDK path value.
const (
	MissingFail        = "fail"
	MissingPlaceholder = "placeholder"
)

// Config represents the contents of envboot.yaml.
type Config struct {
	CMake  CMakeConfig  `yaml:"cmake"`
	SDK    SDKConfig    `yaml:"sdk"`
	Python PythonConfig `yaml:"python"`
	Sync   SyncConfig   `yaml:"sync"`
}

type CMakeConfig struct {
	File     string `yaml:"file"`
	Marker   string `yaml:"marker"`
	Template string `yaml:"template"`
}

type SDKConfig struct {
	Env          string `yaml:"env"`
	MinVersion   string `yaml:"min_version"`
	Version      string `yaml:"version"`
	InstallerURL string `yaml:"installer_url"`
	VendorDir    string `yaml:"vendor_dir"`
	Missing      string `yaml:"missing"`
}

type PythonConfig struct {
	Interpreter string   `yaml:"interpreter"`
	MinVersion  string   `yaml:"min_version"`
	Packages    []string `yaml:"packages"`
}

type SyncConfig struct {
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		CMake: CMakeConfig{
			File:     "CMakeLists.txt",
			Marker:   "## __Vulkan",
			Template: `set(GLFW_VULKAN_INCLUDE_DIR    "{path}")`,
		},
		SDK: SDKConfig{
			Env:          "VULKAN_SDK",
			MinVersion:   "1.3",
			Version:      "1.3.250.1",
			InstallerURL: "https://sdk.lunarg.com/sdk/download/{version}/windows/VulkanSDK-{version}-Installer.exe",
			VendorDir:    "Vendor",
			Missing:      MissingFail,
		},
		Python: PythonConfig{
			Interpreter: defaultInterpreter(),
			MinVersion:  "3.3",
			Packages:    []string{"urllib3", "zipfile", "shlex", "shutil"},
		},
		Sync: SyncConfig{
			Command: []string{"git", "submodule", "update", "--init", "--recursive"},
			Dir:     ".",
		},
	}
}

func defaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Load reads the config at path over the defaults. A missing file yields the
// defaults; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write writes the provided configuration to path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
