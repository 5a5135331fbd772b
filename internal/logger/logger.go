package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger writes category-tagged lines to stdout (colored) and to a plain
// rotating-by-restart log file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

var (
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	fatalColor   = color.New(color.FgRed, color.Bold)
	debugColor   = color.New(color.FgWhite)
	processColor = color.New(color.FgGreen)
)

func NewLogger() *Logger {
	l := &Logger{}

	// Best effort; stdout logging still works when the file cannot be opened.
	if f, err := os.OpenFile("registration-gateway.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		l.file = f
	}

	return l
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) write(level string, c *color.Color, category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s] [%s] [%s] %s", ts, level, category, message)

	c.Println(line)
	if l.file != nil {
		fmt.Fprintln(l.file, line)
	}
}

func (l *Logger) Info(category, message string) {
	l.write("INFO", infoColor, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.write("WARN", warnColor, category, message)
}

func (l *Logger) Error(category, message string) {
	l.write("ERROR", errorColor, category, message)
}

func (l *Logger) Debug(category, message string) {
	if os.Getenv("LOG_DEBUG") == "" {
		return
	}
	l.write("DEBUG", debugColor, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.write("FATAL", fatalColor, category, message)
	l.Close()
	os.Exit(1)
}

// LogProcess marks lifecycle milestones (startup, component init, shutdown).
func (l *Logger) LogProcess(category, message string) {
	l.write("PROC", processColor, category, message)
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.write("DB", infoColor, operation, fmt.Sprintf("[%s] %s", table, message))
}

func (l *Logger) LogKafka(operation, topic, message string) {
	l.write("KAFKA", infoColor, operation, fmt.Sprintf("[%s] %s", topic, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write("API", infoColor, method, fmt.Sprintf("%s - %s (%s)", path, status, duration))
}

// LogPayment traces a group's payment lifecycle by stage.
func (l *Logger) LogPayment(stage, groupID, message string) {
	l.write("PAYMENT", processColor, stage, fmt.Sprintf("[%s] %s", groupID, message))
}

// LogGateway traces the external P2C protocol steps by control number.
func (l *Logger) LogGateway(step, control, message string) {
	l.write("GATEWAY", processColor, step, fmt.Sprintf("[%s] %s", control, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.write("SEC", warnColor, event, message)
}
