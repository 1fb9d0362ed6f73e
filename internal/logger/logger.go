package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// ParseLevel maps LOG_LEVEL values onto a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes category-tagged, colorized lines. Safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level

	levelColors map[Level]*color.Color
	category    *color.Color
	highlight   *color.Color
}

// NewLogger returns a stdout logger at info level. When LOG_FILE is set the
// output is also appended to that file.
func NewLogger() *Logger {
	l := New(os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL")))

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Warn("LOGGER", fmt.Sprintf("Cannot open log file %s: %v", path, err))
		} else {
			l.file = f
			l.out = io.MultiWriter(os.Stdout, f)
		}
	}

	return l
}

func New(out io.Writer, level Level) *Logger {
	return &Logger{
		out:   out,
		level: level,
		levelColors: map[Level]*color.Color{
			DebugLevel: color.New(color.FgHiBlack),
			InfoLevel:  color.New(color.FgGreen),
			WarnLevel:  color.New(color.FgYellow),
			ErrorLevel: color.New(color.FgRed, color.Bold),
		},
		category:  color.New(color.FgCyan),
		highlight: color.New(color.FgMagenta),
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.out = os.Stdout
	return err
}

func (l *Logger) write(level Level, category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	fmt.Fprintf(l.out, "%s %s %s %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		l.levelColors[level].Sprintf("[%-5s]", levelNames[level]),
		l.category.Sprintf("[%s]", category),
		message,
	)
}

func (l *Logger) Debug(category, message string) { l.write(DebugLevel, category, message) }
func (l *Logger) Info(category, message string)  { l.write(InfoLevel, category, message) }
func (l *Logger) Warn(category, message string)  { l.write(WarnLevel, category, message) }
func (l *Logger) Error(category, message string) { l.write(ErrorLevel, category, message) }

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(category, message string) {
	l.write(ErrorLevel, category, message)
	_ = l.Close()
	os.Exit(1)
}

func (l *Logger) LogProcess(process, message string) {
	l.write(InfoLevel, "PROCESS", fmt.Sprintf("%s %s", l.highlight.Sprintf("%s:", process), message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(InfoLevel, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogPayment(action, id, message string) {
	l.write(InfoLevel, "PAYMENT", fmt.Sprintf("%s [%s] %s", l.highlight.Sprint(action), id, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.write(DebugLevel, "DATABASE", fmt.Sprintf("%s %s: %s", operation, table, message))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.write(InfoLevel, "KAFKA", fmt.Sprintf("%s %s: %s", action, topic, message))
}

// LogSecurity is always emitted at warn level so it survives production filters.
func (l *Logger) LogSecurity(event, message string) {
	l.write(WarnLevel, "SECURITY", fmt.Sprintf("%s %s", l.highlight.Sprint(event), message))
}
