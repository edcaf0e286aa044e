// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the leveled printf-style logger shared by every package.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	ErrorLevel = logrus.ErrorLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
)

var std = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// SetLogLevel changes the level of the default logger.
func SetLogLevel(level Level) {
	std.SetLevel(level)
}

// SetOutput redirects the default logger, mostly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// ParseLevel accepts "debug", "info" or "error"; anything else maps to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func IsDebug() bool {
	return std.IsLevelEnabled(DebugLevel)
}

func Debug(format string, args ...any) {
	std.Debugf(strings.TrimRight(format, "\n"), args...)
}

func Info(format string, args ...any) {
	std.Infof(strings.TrimRight(format, "\n"), args...)
}

func Error(format string, args ...any) {
	std.Errorf(strings.TrimRight(format, "\n"), args...)
}

// With returns an entry carrying structured fields, e.g. run_id and stage.
func With(fields map[string]any) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}
