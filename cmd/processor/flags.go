package main

import (
	"flag"
)

// Flags holds the command-line options.
type Flags struct {
	// ConfigPath is the JSON configuration file.
	ConfigPath string

	// KeyPath is the processor key file (generated if missing).
	KeyPath string

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// ExportPath writes a journal export there and exits instead of running.
	ExportPath string
}

// parseFlags parses command-line flags.
func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./mist.json", "Configuration file path")
	flag.StringVar(&f.KeyPath, "key", "./processor.key", "Processor private key path (generates new if missing)")
	flag.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.ExportPath, "export-journal", "", "Write a compressed journal export to this path and exit")
	flag.Parse()

	return f
}
