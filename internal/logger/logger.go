// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the filesystem's ambient logging layer: a
// package-level slog.Logger switchable between text and JSON output, with
// optional rotation to a file via lumberjack. Every other package in this
// module logs through here rather than through the standard "log" package
// or a bare fmt.Fprintf.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, mapped onto slog's integer level space with extra room
// below Debug for Trace and above Error for Off.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(100)
)

// Severity name constants accepted by SetSeverity and InitLogFile's level.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// RotateConfig mirrors cfg.LoggingConfig's rotation knobs.
type RotateConfig struct {
	MaxFileSizeMB  int
	BackupFileCnt  int
	Compress       bool
}

type loggerFactory struct {
	rotator  *lumberjack.Logger
	format   string // "text" or "json"
	level    string
	rotate   RotateConfig
	levelVar *slog.LevelVar
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text", level: INFO, levelVar: new(slog.LevelVar)}
	defaultLogger        = slog.New(defaultLoggerFactory.createHandler(os.Stderr))
)

func init() {
	setLoggingLevel(defaultLoggerFactory.level, defaultLoggerFactory.levelVar)
}

// SetLogFormat switches between "text" and "json" output. An unrecognized
// or empty format falls back to "json".
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(currentWriter()))
}

// SetSeverity adjusts the minimum severity logged without rebuilding the
// handler chain.
func SetSeverity(level string) {
	defaultLoggerFactory.level = level
	setLoggingLevel(level, defaultLoggerFactory.levelVar)
}

// InitLogFile redirects logging to path, rotating via lumberjack according
// to rotate. Passing an empty path leaves logging on stderr.
func InitLogFile(path string, format string, level string, rotate RotateConfig) error {
	defaultLoggerFactory.format = format
	defaultLoggerFactory.level = level
	defaultLoggerFactory.rotate = rotate

	if path == "" {
		defaultLogger = slog.New(defaultLoggerFactory.createHandler(os.Stderr))
		setLoggingLevel(level, defaultLoggerFactory.levelVar)
		return nil
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotate.MaxFileSizeMB,
		MaxBackups: rotate.BackupFileCnt,
		Compress:   rotate.Compress,
	}
	defaultLoggerFactory.rotator = lj
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(lj))
	setLoggingLevel(level, defaultLoggerFactory.levelVar)
	return nil
}

func currentWriter() io.Writer {
	if defaultLoggerFactory.rotator != nil {
		return defaultLoggerFactory.rotator
	}
	return os.Stderr
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case TRACE:
		programLevel.Set(LevelTrace)
	case DEBUG:
		programLevel.Set(LevelDebug)
	case INFO:
		programLevel.Set(LevelInfo)
	case WARNING:
		programLevel.Set(LevelWarn)
	case ERROR:
		programLevel.Set(LevelError)
	case OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func (f *loggerFactory) createHandler(w io.Writer) slog.Handler {
	return &severityHandler{w: w, format: f.format, level: f.levelVar}
}

// severityHandler renders records as either:
//
//	time="2006/01/02 15:04:05.000000" severity=INFO message="..."
//
// or:
//
//	{"timestamp":{"seconds":...,"nanos":...},"severity":"INFO","message":"..."}
//
// the two formats LoggingConfig.Format exposes to users.
type severityHandler struct {
	w      io.Writer
	format string
	level  *slog.LevelVar
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	sev := severityName(r.Level)
	if h.format == "text" {
		_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
			r.Time.Format("2006/01/02 15:04:05.000000"), sev, r.Message)
		return err
	}
	_, err := fmt.Fprintf(h.w, `{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%q}`+"\n",
		r.Time.Unix(), r.Time.Nanosecond(), sev, r.Message)
	return err
}

func (h *severityHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(_ string) slog.Handler      { return h }

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return TRACE
	case l < LevelInfo:
		return DEBUG
	case l < LevelWarn:
		return INFO
	case l < LevelError:
		return WARNING
	default:
		return ERROR
	}
}

func Tracef(format string, args ...any) { log(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { log(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { log(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { log(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { log(LevelError, format, args...) }

func log(level slog.Level, format string, args ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
