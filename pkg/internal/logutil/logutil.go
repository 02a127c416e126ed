// Package logutil is the module's thin logging layer: leveled printf
// helpers over the standard *log.Logger, with a JSON line mode for log
// collectors switched by LEDGER_LOG_JSON=1 (or SetJSON at runtime).
package logutil

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "sync/atomic"
    "time"
)

// Level tags a log line.
type Level uint8

const (
    LevelInfo Level = iota
    LevelWarn
    LevelError
)

func (lv Level) String() string {
    switch lv {
    case LevelWarn:
        return "warn"
    case LevelError:
        return "error"
    default:
        return "info"
    }
}

func (lv Level) tag() string {
    switch lv {
    case LevelWarn:
        return "WARN"
    case LevelError:
        return "ERROR"
    default:
        return "INFO"
    }
}

var jsonLines atomic.Bool

func init() {
    if os.Getenv("LEDGER_LOG_JSON") == "1" || os.Getenv("LEDGER_LOG_FORMAT") == "json" {
        jsonLines.Store(true)
    }
}

// SetJSON switches the process-wide output mode at runtime.
func SetJSON(enabled bool) { jsonLines.Store(enabled) }

func Infof(l *log.Logger, format string, args ...any)  { emit(l, LevelInfo, format, args...) }
func Warnf(l *log.Logger, format string, args ...any)  { emit(l, LevelWarn, format, args...) }
func Errorf(l *log.Logger, format string, args ...any) { emit(l, LevelError, format, args...) }

type line struct {
    TS    string `json:"ts"`
    Level string `json:"level"`
    Msg   string `json:"msg"`
}

func emit(l *log.Logger, lv Level, format string, args ...any) {
    if l == nil { l = log.Default() }
    msg := fmt.Sprintf(format, args...)
    if jsonLines.Load() {
        b, _ := json.Marshal(line{TS: time.Now().UTC().Format(time.RFC3339Nano), Level: lv.String(), Msg: msg})
        l.Println(string(b))
        return
    }
    l.Println(lv.tag() + " " + msg)
}
