// Package logger is the structured logger shared by the CLI and the retrieval pipeline.
// Output goes to stdout and, once a run log is attached, is teed to a rotating file.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// OutputFormat selects the slog handler.
type OutputFormat string

// Output formats.
const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

var (
	// testOutput is used to capture log output during tests
	testOutput   io.Writer
	testOutputMu sync.Mutex

	runLog *lumberjack.Logger
)

// Fields is a type alias for log fields to make the API cleaner
type Fields map[string]interface{}

var (
	logger       *slog.Logger
	currentLevel = new(slog.LevelVar)
	currentFmt   = FormatText
)

// SetTestOutput sets the output writer for testing purposes
func SetTestOutput(w io.Writer) {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = w
}

// UnsetTestOutput resets the test output to nil
func UnsetTestOutput() {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = nil
}

func getOutput() io.Writer {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	var out io.Writer = os.Stdout
	if testOutput != nil {
		out = testOutput
	}
	if runLog != nil {
		return io.MultiWriter(out, runLog)
	}
	return out
}

// ParseLevel maps a level name onto a slog level. Unknown names fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger initializes the global logger for CLI operations.
func InitLogger(logLevel string, format OutputFormat) {
	currentLevel.Set(ParseLevel(logLevel))
	currentFmt = format
	rebuild()
}

// SetOutputFormat switches the handler while keeping the level.
func SetOutputFormat(format OutputFormat) {
	currentFmt = format
	rebuild()
}

// AttachRunLog tees all further output to path. The file is rotated by size.
func AttachRunLog(path string) {
	testOutputMu.Lock()
	if runLog != nil {
		_ = runLog.Close()
	}
	runLog = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
	}
	testOutputMu.Unlock()
	rebuild()
}

// CloseRunLog detaches and closes the run log file, if any.
func CloseRunLog() error {
	testOutputMu.Lock()
	rl := runLog
	runLog = nil
	testOutputMu.Unlock()
	rebuild()
	if rl == nil {
		return nil
	}
	return rl.Close()
}

func rebuild() {
	opts := &slog.HandlerOptions{Level: currentLevel}
	var handler slog.Handler
	if currentFmt == FormatJSON {
		handler = slog.NewJSONHandler(getOutput(), opts)
	} else {
		handler = slog.NewTextHandler(getOutput(), opts)
	}
	logger = slog.New(handler)
}

// GetLogger returns the configured logger instance.
func GetLogger() *slog.Logger {
	if logger == nil {
		// Initialize with default settings if not already initialized
		InitLogger("info", FormatText)
	}
	return logger
}

func emit(level slog.Level, msg string, attrs []interface{}) {
	GetLogger().Log(context.Background(), level, msg, attrs...)
}

// Leveled helpers. Fields are optional.
func Info(msg string, fields ...Fields)  { emit(slog.LevelInfo, msg, mergeFields(fields...)) }
func Debug(msg string, fields ...Fields) { emit(slog.LevelDebug, msg, mergeFields(fields...)) }
func Warn(msg string, fields ...Fields)  { emit(slog.LevelWarn, msg, mergeFields(fields...)) }
func Error(msg string, fields ...Fields) { emit(slog.LevelError, msg, mergeFields(fields...)) }

// Success logs at info level tagged status=success. Summaries at the end of a run use it.
func Success(msg string, fields ...Fields) {
	emit(slog.LevelInfo, msg, append(mergeFields(fields...), "status", "success"))
}

// mergeFields flattens field maps into slog key/value pairs, in argument order.
func mergeFields(fields ...Fields) []interface{} {
	result := []interface{}{}
	for _, field := range fields {
		for k, v := range field {
			result = append(result, k, v)
		}
	}
	return result
}
