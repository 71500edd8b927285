package utils

import (
	"fmt"
	"os"
)

type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type SimpleLogger struct {
	prefix string
}

func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{}
}

// NewPrefixedLogger returns a SimpleLogger that prepends the given prefix.
func NewPrefixedLogger(prefix string) *SimpleLogger {
	return &SimpleLogger{prefix: prefix}
}

func (l *SimpleLogger) Info(msg string)  { l.print("INFO", msg) }
func (l *SimpleLogger) Warn(msg string)  { l.print("WARN", msg) }
func (l *SimpleLogger) Error(msg string) { l.print("ERROR", msg) }

func (l *SimpleLogger) print(level, msg string) {
	if l.prefix != "" {
		fmt.Fprintf(os.Stderr, "%s: [%s] %s\n", level, l.prefix, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", level, msg)
}
