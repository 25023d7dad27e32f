package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "ENVBOOT_LOG_LEVEL"

// Config captures options for configuring the global logger.
type Config struct {
	Level  string    // optional log level ("debug", "info", etc.)
	Output io.Writer // optional writer (defaults to os.Stderr)
	// JSON disables the human-readable console writer.
	JSON bool
}

var (
	mu         sync.RWMutex
	base       zerolog.Logger
	configured bool
)

// Configure replaces the global logger. Later calls win.
func Configure(cfg Config) {
	level := zerolog.WarnLevel
	if env := os.Getenv(EnvLogLevel); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	} else if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if !cfg.JSON {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	configured = true
}

func logger() zerolog.Logger {
	mu.RLock()
	if configured {
		defer mu.RUnlock()
		return base
	}
	mu.RUnlock()
	Configure(Config{})
	return logger()
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}
