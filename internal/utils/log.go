package utils

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the logger shared by every step of the install.
var Log = zerolog.Nop()

func SetLogger(debug bool) {
	level := zerolog.InfoLevel

	// Set debug level
	debugFromEnv := os.Getenv("EMMC_INSTALL_DEBUG") != ""
	if debug || debugFromEnv {
		level = zerolog.DebugLevel
	}

	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
