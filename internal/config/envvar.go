package config

import "os"

// Environment variable names for envboot configuration.
const (
	EnvConfig = "ENVBOOT_CONFIG" // Path to envboot.yaml
)

// PathFromEnv returns the config path named by ENVBOOT_CONFIG, if set.
func PathFromEnv() (string, bool) {
	p := os.Getenv(EnvConfig)
	return p, p != ""
}
