package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Init opens logFilePath for appending, installs a text handler at level as
// the slog default and returns a func that closes the file.
func Init(logFilePath, level string) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, nil, err
	}

	log := New(file, lvl)
	slog.SetDefault(log)
	log.Info("logger initialized", "file", logFilePath, "level", lvl)
	return log, file.Close, nil
}

// New builds the text logger used everywhere in the process.
func New(w io.Writer, lvl slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
