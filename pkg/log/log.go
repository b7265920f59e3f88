/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log wires a zap-backed logger into context.Context the way
// knative.dev/pkg/logging expects it, so every control loop can carry a
// per-process-name logger through FromContext rather than a package-level
// global.
package log

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"knative.dev/pkg/logging"
)

// NewContext builds a named, structured zap logger (JSON encoding, at debug
// level if debug is true and at info otherwise) and returns a context
// carrying it for logging.FromContext(ctx) to retrieve.
func NewContext(parent context.Context, processName string, debug bool) context.Context {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := cfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	named := zapLogger.Named(processName).Sugar()
	return logging.WithLogger(parent, named)
}

// FromContext is a thin re-export so callers depend on pkg/log rather than
// reaching into knative.dev/pkg/logging directly.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	return logging.FromContext(ctx)
}
