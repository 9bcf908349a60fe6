package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

type LogFields map[string]interface{}

type Logger interface {
	WithFields(fields LogFields) Logger

	Info(action, message string)
	Debug(action, message string)
	Warn(action, message string)
	Error(action string, err error)
}

// jsonLogger writes one JSON object per line.
type jsonLogger struct {
	mu         *sync.Mutex // shared by every derived logger writing to out
	out        io.Writer
	service    string
	hostname   string
	minLevel   LogLevel
	baseFields LogFields
}

// logEntry is the wire shape of a log line. Well-known correlation ids are
// promoted to top-level keys so the audit pipeline can index them.
type logEntry struct {
	Timestamp     string   `json:"timestamp"`
	Level         LogLevel `json:"level"`
	Service       string   `json:"service"`
	Action        string   `json:"action"`
	Message       string   `json:"message"`
	Hostname      string   `json:"hostname"`
	RequestID     string   `json:"request_id,omitempty"`
	RideID        string   `json:"ride_id,omitempty"`
	ReservationID string   `json:"reservation_id,omitempty"`

	Error *errorEntry `json:"error,omitempty"`

	Fields LogFields `json:"fields,omitempty"`
}

type errorEntry struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// NewLogger creates a structured JSON logger writing to stdout at INFO level.
func NewLogger(serviceName string) Logger {
	return New(serviceName, os.Stdout, LevelInfo)
}

// New creates a structured JSON logger with an explicit writer and minimum level.
func New(serviceName string, out io.Writer, minLevel LogLevel) Logger {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if _, ok := levelRank[minLevel]; !ok {
		minLevel = LevelInfo
	}

	return &jsonLogger{
		mu:         &sync.Mutex{},
		out:        out,
		service:    serviceName,
		hostname:   host,
		minLevel:   minLevel,
		baseFields: make(LogFields),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return New("nop", io.Discard, LevelError)
}

// WithFields returns a child logger carrying the parent's fields plus the
// given ones. Keys in fields win on conflict.
func (l *jsonLogger) WithFields(fields LogFields) Logger {
	newFields := make(LogFields, len(l.baseFields)+len(fields))
	for k, v := range l.baseFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &jsonLogger{
		mu:         l.mu,
		out:        l.out,
		service:    l.service,
		hostname:   l.hostname,
		minLevel:   l.minLevel,
		baseFields: newFields,
	}
}

func (l *jsonLogger) Info(action, message string) {
	l.log(LevelInfo, action, message, nil)
}

func (l *jsonLogger) Debug(action, message string) {
	l.log(LevelDebug, action, message, nil)
}

func (l *jsonLogger) Warn(action, message string) {
	l.log(LevelWarn, action, message, nil)
}

// Error logs an error together with a trimmed stack trace.
func (l *jsonLogger) Error(action string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", action)
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	errData := &errorEntry{
		Msg:   err.Error(),
		Stack: cleanStack(string(buf[:n])),
	}
	l.log(LevelError, action, err.Error(), errData)
}

func (l *jsonLogger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

func (l *jsonLogger) log(level LogLevel, action, message string, errData *errorEntry) {
	if !l.enabled(level) {
		return
	}

	entry := &logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Service:   l.service,
		Action:    action,
		Message:   message,
		Hostname:  l.hostname,
		Error:     errData,
		Fields:    make(LogFields),
	}

	for k, v := range l.baseFields {
		s, isString := v.(string)
		switch {
		case k == "ride_id" && isString:
			entry.RideID = s
		case k == "request_id" && isString:
			entry.RequestID = s
		case k == "reservation_id" && isString:
			entry.ReservationID = s
		default:
			entry.Fields[k] = v
		}
	}

	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	line, err := json.Marshal(entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log: %v\n", err)
		fmt.Fprintf(l.out, "%s [%s] %s: %s\n", entry.Timestamp, entry.Level, entry.Action, entry.Message)
		return
	}
	fmt.Fprintln(l.out, string(line))
}

// cleanStack drops runtime, testing and logger frames from a goroutine dump.
func cleanStack(stack string) string {
	lines := strings.Split(stack, "\n")
	var cleaned []string

	if len(lines) > 0 {
		cleaned = append(cleaned, lines[0])
	}

	for i := 1; i+1 < len(lines); i += 2 {
		funcName := lines[i]
		filePath := lines[i+1]

		if strings.HasPrefix(funcName, "runtime.") ||
			strings.HasPrefix(funcName, "testing.") ||
			strings.Contains(funcName, "logger.(*jsonLogger)") ||
			strings.Contains(filePath, "runtime/panic.go") {
			continue
		}

		cleaned = append(cleaned, funcName, "    "+strings.TrimSpace(filePath))
	}

	return strings.Join(cleaned, "\n")
}
