// Package logging configures the gateway's structured logger: logrus with
// JSON or text formatting and file rotation via lumberjack, matching the
// teacher's use of "log github.com/sirupsen/logrus" throughout its
// management handlers.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/llmbridge/vendorcore/internal/config"
)

// Configure sets the global logrus logger's level, output, and rotation
// policy from cfg. Call once at process startup.
func Configure(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxOrDefault(cfg.MaxSizeMB, 50),
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

func maxOrDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// AuditEntry is the shape the command surface prints for `status`
// (SPEC_FULL.md §3 AuditEvent, surfaced as plain log lines rather than a
// dedicated persistence layer).
type AuditEntry struct {
	At string
	Op string
}

// LogAudit writes one audit line at Info level; the Token Store's ring
// buffer (internal/tokenstore.Store.AuditLog) is the source of these
// strings, already formatted.
func LogAudit(lines []string) {
	for _, line := range lines {
		log.WithField("component", "audit").Info(line)
	}
}
