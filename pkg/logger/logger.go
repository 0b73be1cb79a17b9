// Package logger is the SDK's own diagnostic channel. It never feeds back
// into the telemetry pipeline: output goes to stderr so a broken ingestion
// endpoint can be reported without producing more telemetry about itself.
package logger

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"
)

type Logger struct {
	logger  *log.Logger
	level   Level
	limiter *rate.Limiter
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// New creates a diagnostic logger filtered at the given level. Output is
// rate-limited so a dead endpoint retrying every flush interval cannot
// flood the host's stderr.
func New(level string) *Logger {
	return &Logger{
		logger:  log.New(os.Stderr, "treebeard: ", 0),
		level:   parseLevel(level),
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log("ERROR", msg, args...)
	}
}

func (l *Logger) log(level, msg string, args ...interface{}) {
	if !l.limiter.Allow() {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

	if len(args) > 0 {
		message += " |"
		for i := 0; i < len(args); i += 2 {
			if i+1 < len(args) {
				message += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			} else {
				message += fmt.Sprintf(" %v", args[i])
			}
		}
	}

	l.logger.Println(message)
}
