/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the concrete logger type handed out by NewLogger.
type Logger = logrus.Logger

// PathFormat selects how a caller's file path is rendered in log lines.
type PathFormat int

const (
	PathFormatFilenameOnly PathFormat = iota
	PathFormatShortRelative
	PathFormatFullRelative
)

var (
	defaultConsoleLevel = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	defaultFileLevel    = ParseLogLevel(EnvDefaultString("FILE_LOG_LEVEL", "debug"))
	loggerRegistryMu    sync.RWMutex
	loggerRegistry      = map[string]*logrus.Logger{}
	fileLogEnabled      = EnvDefaultBool("FILE_LOG_ENABLED", false)
	fileLogPath         = EnvDefaultString("FILE_LOG_PATH", "logs/pgboot.log")
	fileLogFormat       = EnvDefaultString("FILE_LOG_FORMAT", "text")
	consoleLogFormat    = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
)

// ConfigureFileLog enables the file hook for loggers created afterwards and
// optionally changes the target path.
func ConfigureFileLog(path string) {
	fileLogEnabled = true
	if path != "" {
		fileLogPath = path
	}
}

// ConfigureFileLogFormat switches the file output between "text" and "json".
func ConfigureFileLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		fileLogFormat = "json"
	} else {
		fileLogFormat = "text"
	}
}

// ConfigureConsoleLogFormat switches the console output between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ParseLogLevel converts a level name into a logrus level, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// RegisterLogger records a named logger so level changes can reach it later.
func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

func maxLevel(a, b logrus.Level) logrus.Level {
	if a >= b {
		return a
	}
	return b
}

// SetAllLoggersLevel applies one level to every registered logger and to both
// the console and file thresholds.
func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(lvl)
	defaultConsoleLevel = lvl
	defaultFileLevel = lvl
}

// SetLoggerLevel adjusts a single registered logger, reporting whether the
// name was known.
func SetLoggerLevel(name string, lvlStr string) bool {
	lvl := ParseLogLevel(lvlStr)
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(lvl)
	return true
}

// ConfigureLogLevel sets the console and file thresholds from a level name.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	defaultConsoleLevel = lvl
	defaultFileLevel = lvl
	base := maxLevel(defaultConsoleLevel, defaultFileLevel)
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(base)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(base)
}

type consoleWriterHook struct {
	formatter logrus.Formatter
}

func (h *consoleWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *consoleWriterHook) Fire(e *logrus.Entry) error {
	if e.Level > defaultConsoleLevel {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

type fileWriterHook struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	formatter logrus.Formatter
}

func (h *fileWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileWriterHook) Fire(e *logrus.Entry) error {
	if e.Level > defaultFileLevel {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		h.file = f
	}
	_, err = h.file.Write(b)
	return err
}

// NewLogger builds a named logger that writes colored text (or JSON) to the
// console and, when enabled, appends to the shared log file. The logger is
// registered so later level changes apply to it.
func NewLogger(name string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(maxLevel(defaultConsoleLevel, defaultFileLevel))
	l.SetReportCaller(true)

	var consoleFmt logrus.Formatter
	if consoleLogFormat == "json" {
		consoleFmt = &JSONLogFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatFullRelative,
		}
	} else {
		consoleFmt = &ColorTextFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatShortRelative,
			NameWidth:       10,
		}
	}
	l.SetFormatter(consoleFmt)
	l.AddHook(&consoleWriterHook{formatter: consoleFmt})

	if fileLogEnabled {
		var fileFmt logrus.Formatter
		if fileLogFormat == "json" {
			fileFmt = &JSONLogFormatter{
				LoggerName:      name,
				TimestampFormat: "2006-01-02 15:04:05.000",
				PathFmt:         PathFormatFullRelative,
			}
		} else {
			fileFmt = &ColorTextFormatter{
				LoggerName:      name,
				TimestampFormat: "2006-01-02 15:04:05.000",
				PathFmt:         PathFormatFullRelative,
				NameWidth:       10,
				DisableColor:    true,
			}
		}
		l.AddHook(&fileWriterHook{path: fileLogPath, formatter: fileFmt})
	}

	RegisterLogger(name, l)
	return l
}

var (
	levelColorRed     = color.New(color.FgRed)
	levelColorYellow  = color.New(color.FgYellow)
	levelColorGreen   = color.New(color.FgGreen)
	levelColorBlue    = color.New(color.FgBlue)
	levelColorMagenta = color.New(color.FgMagenta)
	nameColorCyan     = color.New(color.FgCyan)
	faintColor        = color.New(color.Faint)
)

func colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return levelColorRed.Sprint(s)
	case logrus.WarnLevel:
		return levelColorYellow.Sprint(s)
	case logrus.InfoLevel:
		return levelColorGreen.Sprint(s)
	case logrus.DebugLevel:
		return levelColorBlue.Sprint(s)
	default:
		return levelColorMagenta.Sprint(s)
	}
}

// ColorTextFormatter renders log4j-style lines:
//
//	2025-01-02 15:04:05.000    INFO 4242 ---   DATABASE server/server.go:42 : message key=value
type ColorTextFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
	NameWidth       int
	DisableColor    bool
}

func (f *ColorTextFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return "2006-01-02 15:04:05.000"
}

func (f *ColorTextFormatter) paint(s string, c *color.Color) string {
	if f.DisableColor {
		return s
	}
	return c.Sprint(s)
}

func (f *ColorTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.tsFormat())
	lvl := padLeft(strings.ToUpper(entry.Level.String()), 7)
	if !f.DisableColor {
		lvl = colorLevel(lvl, entry.Level)
	}
	name := padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth)
	name = f.paint(name, nameColorCyan)
	pid := f.paint(strconv.Itoa(os.Getpid()), levelColorMagenta)

	caller := ""
	if entry.Caller != nil {
		caller = " " + f.paint(formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt), faintColor)
	}

	fields := ""
	if len(entry.Data) > 0 {
		fields = " " + f.paint(joinFields(entry.Data), faintColor)
	}

	line := fmt.Sprintf("%s %s %s --- %s%s %s %s%s\n",
		ts, lvl, pid, name, caller, f.paint(":", faintColor), entry.Message, fields)
	return []byte(line), nil
}

// JSONLogFormatter renders one JSON object per line with the logger name,
// caller, and any structured fields attached to the entry.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
}

func (f *JSONLogFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return "2006-01-02 15:04:05.000"
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	type jsonLogRecord struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}

	rec := jsonLogRecord{
		Time:    entry.Time.Format(f.tsFormat()),
		Level:   strings.ToLower(entry.Level.String()),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt)
	}
	if len(entry.Data) > 0 {
		rec.Fields = entry.Data
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func formatCaller(file string, line int, pf PathFormat) string {
	switch pf {
	case PathFormatFilenameOnly:
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	case PathFormatFullRelative:
		return fmt.Sprintf("%s:%d", moduleRelative(filepath.ToSlash(file)), line)
	default:
		return fmt.Sprintf("%s:%d", shortRelative(file), line)
	}
}

func joinFields(data logrus.Fields) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	moduleRootOnce sync.Once
	moduleRoot     string
)

// moduleRelative strips the module root from an absolute source path so log
// lines stay short regardless of the build machine's layout.
func moduleRelative(p string) string {
	moduleRootOnce.Do(func() {
		moduleRoot = findModuleRootFrom(p)
	})
	if moduleRoot != "" && strings.HasPrefix(p, moduleRoot) {
		return strings.TrimPrefix(strings.TrimPrefix(p, moduleRoot), "/")
	}
	return p
}

func findModuleRootFrom(p string) string {
	dir := filepath.Dir(p)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.ToSlash(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func shortRelative(p string) string {
	rel := moduleRelative(filepath.ToSlash(p))
	parts := strings.Split(rel, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return parts[0]
}

// EnvDefaultString returns the environment value for key or def when unset.
func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvDefaultBool returns the boolean environment value for key or def when unset.
func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
