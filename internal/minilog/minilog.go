// Package minilog extends Go's logging with multiple named loggers, each
// with its own level. Call AddLogger to register a logger, then use the
// package-level functions (Debug, Info, Warn, Error, Fatal) to send a
// message to every registered logger that is at or below the message's
// level.
package minilog

import (
	"bufio"
	"fmt"
	"io"
	golog "log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

type minilogger struct {
	*golog.Logger
	Level Level
	Color bool
}

var (
	loggers = make(map[string]*minilogger)
	logLock sync.RWMutex
)

// AddLogger registers a named logger writing to output at the given level.
func AddLogger(name string, output io.Writer, level Level, color bool) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &minilogger{
		Logger: golog.New(output, "", golog.LstdFlags),
		Level:  level,
		Color:  color,
	}
}

// DelLogger removes a named logger.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

// SetLevel changes the level of a named logger.
func SetLevel(name string, level Level) error {
	logLock.Lock()
	defer logLock.Unlock()

	l, ok := loggers[name]
	if !ok {
		return fmt.Errorf("no such logger %v", name)
	}
	l.Level = level
	return nil
}

// Init wires up the standard "stdio" logger (and, if path is non-empty, a
// "file" logger) from CLI-supplied settings.
func Init(levelName string, logfile string) error {
	level, err := LevelInt(levelName)
	if err != nil {
		return err
	}

	color := runtime.GOOS != "windows"
	AddLogger("stdio", os.Stderr, level, color)

	if logfile != "" {
		if err := os.MkdirAll(filepath.Dir(logfile), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
		if err != nil {
			return err
		}
		AddLogger("file", f, level, false)
	}
	return nil
}

// LogAll copies lines from r into the log at the given level until EOF.
// Starts a goroutine and returns immediately.
func LogAll(r io.Reader, level Level, name string) {
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				logmsg(level, name, line)
			}
		}
	}()
}

func prologue(l *minilogger, level Level, name string) string {
	var msg string
	switch level {
	case DEBUG:
		msg = "DEBUG "
	case INFO:
		msg = "INFO "
	case WARN:
		msg = "WARN "
	case ERROR:
		msg = "ERROR "
	default:
		msg = "FATAL "
	}

	if name == "" {
		_, file, line, ok := runtime.Caller(4)
		if ok {
			msg += fmt.Sprintf("%s:%d: ", filepath.Base(file), line)
		}
	} else {
		msg += name + ": "
	}

	if l.Color {
		switch level {
		case DEBUG:
			msg = colorBlue + msg
		case INFO:
			msg = colorGreen + msg
		case WARN, ERROR:
			msg = colorRed + msg
		default:
			msg = colorRed + msg
		}
	}
	return msg
}

func epilogue(l *minilogger) string {
	if l.Color {
		return colorReset
	}
	return ""
}

func logmsg(level Level, name, format string, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	for _, l := range loggers {
		if l.Level > level {
			continue
		}
		msg := prologue(l, level, name) + fmt.Sprintf(format, arg...) + epilogue(l)
		l.Println(msg)
	}
}

func Debug(format string, arg ...interface{}) { logmsg(DEBUG, "", format, arg...) }
func Info(format string, arg ...interface{})  { logmsg(INFO, "", format, arg...) }
func Warn(format string, arg ...interface{})  { logmsg(WARN, "", format, arg...) }
func Error(format string, arg ...interface{}) { logmsg(ERROR, "", format, arg...) }

func Fatal(format string, arg ...interface{}) {
	logmsg(FATAL, "", format, arg...)
	os.Exit(1)
}

func Debugln(arg ...interface{}) { logmsg(DEBUG, "", fmt.Sprint(arg...)) }
func Infoln(arg ...interface{})  { logmsg(INFO, "", fmt.Sprint(arg...)) }
func Warnln(arg ...interface{})  { logmsg(WARN, "", fmt.Sprint(arg...)) }
func Errorln(arg ...interface{}) { logmsg(ERROR, "", fmt.Sprint(arg...)) }
