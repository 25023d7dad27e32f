package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	Root             string
	ConfigPath       string
	SDKPath          string
	DryRun           bool
	PrintLine        bool
	Status           bool
	Init             bool
	SkipPackages     bool
	SkipSDK          bool
	NoSync           bool
	Yes              bool
	AllowMissingPath bool
	NoAnimation      bool
	Verbose          bool
}

// ParseArgs defines and parses command-line flags using pflag. Usage and
// parse errors are written to out.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := &Config{}
	flags := pflag.NewFlagSet("envboot", pflag.ContinueOnError)
	flags.SetOutput(out)

	flags.StringVarP(&cfg.Root, "root", "C", "", "Project root (default: nearest directory with envboot.yaml or CMakeLists.txt).")
	flags.StringVarP(&cfg.ConfigPath, "config", "c", "", "Path to envboot.yaml (default: $ENVBOOT_CONFIG or <root>/envboot.yaml).")
	flags.StringVar(&cfg.SDKPath, "sdk-path", "", "Use this SDK path instead of the environment variable.")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Report what would change without writing files or installing anything.")
	flags.BoolVarP(&cfg.Yes, "yes", "y", false, "Answer yes to every prompt (install packages, download the SDK).")
	flags.BoolVar(&cfg.AllowMissingPath, "allow-missing-path", false, "Write the placeholder 'None' when the SDK path is not set.")
	flags.BoolVar(&cfg.SkipPackages, "skip-packages", false, "Skip the Python package check.")
	flags.BoolVar(&cfg.SkipSDK, "skip-sdk", false, "Skip the SDK check.")
	flags.BoolVar(&cfg.NoSync, "no-sync", false, "Skip the dependency sync.")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")

	// Mutually exclusive mode group
	flags.BoolVarP(&cfg.PrintLine, "print-line", "p", false, "Print the replacement line for the current SDK path and exit.")
	flags.BoolVarP(&cfg.Status, "status", "s", false, "Show the last recorded run and whether patched files changed since.")
	flags.BoolVar(&cfg.Init, "init", false, "Write a default envboot.yaml to the project root and exit.")

	flags.Usage = func() {
		fmt.Fprintln(out, "Usage: envboot [flags]")
		fmt.Fprintln(out, "\nCheck the build prerequisites and point CMakeLists.txt at the Vulkan SDK.")
		fmt.Fprintln(out, "\nExample: VULKAN_SDK=C:/VulkanSDK/1.3.250.1 envboot -y")
		fmt.Fprintln(out, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, usageError(out, fmt.Errorf("error: unexpected arguments: %v", flags.Args()))
	}

	// Validate mutually exclusive flags
	modes := 0
	for _, set := range []bool{cfg.PrintLine, cfg.Status, cfg.Init} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return nil, usageError(out, fmt.Errorf("error: --print-line, --status and --init are mutually exclusive"))
	}

	return cfg, nil
}

// usageError prints err the way pflag prints its own parse errors.
func usageError(out io.Writer, err error) error {
	fmt.Fprintln(out, err)
	return err
}
