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


package database

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/repokit/utils"
)

const loggerName = "DATABASE"

var globalLogger atomic.Pointer[Logger]

// Logger is the key/value logger used by the connection layer. Fields are
// passed as alternating keys and values.
type Logger interface {
	SetLevel(level logrus.Level)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the global logger unless one is already set.
func InitLogger(log Logger) {
	if log != nil {
		globalLogger.CompareAndSwap(nil, &log)
	}
}

// GetLogger returns the global logger, installing a DefaultLogger on first use.
func GetLogger() Logger {
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	InitLogger(NewDefaultLogger())
	return *globalLogger.Load()
}

// DefaultLogger writes through the named "DATABASE" logrus logger.
type DefaultLogger struct {
	log *logrus.Logger
}

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{log: utils.NewLogger(loggerName)}
}

func (l *DefaultLogger) SetLevel(level logrus.Level) { l.log.SetLevel(level) }

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }

func (l *DefaultLogger) Info(msg string, fields ...interface{}) { l.with(fields).Info(msg) }

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) { l.with(fields).Warn(msg) }

func (l *DefaultLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }

// with pairs up fields; a trailing key without a value is dropped.
func (l *DefaultLogger) with(fields []interface{}) *logrus.Entry {
	data := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		data[fmt.Sprint(fields[i])] = fields[i+1]
	}
	return l.log.WithFields(data)
}
