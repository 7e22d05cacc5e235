/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package klog is a small leveled, RFC5424-structured logger used
// throughout the kernel in place of bare fmt/log calls.
package klog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return `OFF`
	case DEBUG:
		return `DEBUG`
	case INFO:
		return `INFO`
	case WARN:
		return `WARN`
	case ERROR:
		return `ERROR`
	case CRITICAL:
		return `CRITICAL`
	}
	return `UNKNOWN`
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case `OFF`:
		return OFF, nil
	case `DEBUG`:
		return DEBUG, nil
	case `INFO`:
		return INFO, nil
	case `WARN`:
		return WARN, nil
	case `ERROR`:
		return ERROR, nil
	case `CRITICAL`:
		return CRITICAL, nil
	}
	return OFF, errors.New("invalid log level " + s)
}

// Relay receives every log line in addition to any registered writers.
// An implementation can forward lines to an external sink (e.g. a
// userspace terminal process) without coupling klog to it.
type Relay interface {
	WriteLog(time.Time, []byte) error
}

// KV builds a single structured-data field the way ingest/log/utils.go's
// KV helper does.
func KV(name string, value interface{}) rfc5424.SDParam {
	if s, ok := value.(string); ok {
		return rfc5424.SDParam{Name: name, Value: s}
	}
	return rfc5424.SDParam{Name: name, Value: fmt.Sprintf("%v", value)}
}

func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

const defaultSDID = `kern@1`

// Logger is a small multi-writer, multi-relay leveled logger. It is safe
// for concurrent use; every component in the kernel holds one.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	rls      []Relay
	lvl      Level
	hostname string
	appname  string
}

// New creates a logger writing to wtr at level INFO.
func New(wtr io.Writer) *Logger {
	hn, _ := os.Hostname()
	return &Logger{
		wtrs:     []io.Writer{wtr},
		lvl:      INFO,
		hostname: hn,
		appname:  "kernel",
	}
}

func NewDiscard() *Logger {
	return New(io.Discard)
}

func (l *Logger) SetAppname(name string) {
	l.mtx.Lock()
	l.appname = name
	l.mtx.Unlock()
}

func (l *Logger) AddWriter(w io.Writer) {
	l.mtx.Lock()
	l.wtrs = append(l.wtrs, w)
	l.mtx.Unlock()
}

func (l *Logger) AddRelay(r Relay) {
	l.mtx.Lock()
	l.rls = append(l.rls, r)
	l.mtx.Unlock()
}

func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
}

func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

func (l *Logger) Level() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(ERROR, f, args...) }

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.output(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.output(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.output(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.output(ERROR, msg, sds...) }

// Fatal logs at CRITICAL and invokes onFatal instead of os.Exit, so the
// enclosing runtime decides recovery.
func (l *Logger) Fatal(onFatal func(error), msg string, sds ...rfc5424.SDParam) {
	l.output(CRITICAL, msg, sds...)
	if onFatal != nil {
		onFatal(errors.New(msg))
	}
}

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) {
	l.output(lvl, fmt.Sprintf(f, args...))
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if lvl < l.lvl || l.lvl == OFF {
		return
	}
	ts := time.Now()
	b, err := genRFCMessage(ts, lvl.priority(), l.hostname, l.appname, msg, sds...)
	if err != nil {
		return
	}
	line := strings.TrimRight(string(b), "\n\t\r") + "\n"
	for _, w := range l.wtrs {
		io.WriteString(w, line)
	}
	for _, r := range l.rls {
		r.WriteLog(ts, b)
	}
}

func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msg string, sds ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trim(255, hostname),
		AppName:   trim(48, appname),
		MessageID: `kern`,
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: defaultSDID, Parameters: sds}}
	}
	return m.MarshalBinary()
}

func trim(n int, s string) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
