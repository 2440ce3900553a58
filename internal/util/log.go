/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package util

import (
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/ajjensen13/gke"
)

type contextKey string

const (
	loggerContextKey contextKey = "logger"
	extraContextKey  contextKey = "extra"
)

// WithLoggerValue returns a copy of ctx whose log entries carry key=val
// in addition to any values already attached.
func WithLoggerValue(ctx context.Context, key string, val interface{}) context.Context {
	var nm map[string]interface{}
	if pm, ok := ctx.Value(extraContextKey).(map[string]interface{}); ok {
		nm = make(map[string]interface{}, len(pm)+1)
		for k, v := range pm {
			nm[k] = v
		}
	} else {
		nm = map[string]interface{}{}
	}

	nm[key] = val
	return context.WithValue(ctx, extraContextKey, nm)
}

func WithLogger(ctx context.Context, lg gke.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, lg)
}

// Logger returns the logger attached to ctx, if any.
func Logger(ctx context.Context) (gke.Logger, bool) {
	lg, ok := ctx.Value(loggerContextKey).(gke.Logger)
	return lg, ok && lg != nil
}

type logPayload struct {
	Message string
	Values  map[string]interface{}
}

func (l logPayload) String() string {
	return l.Message
}

// Logf writes a structured entry to the context logger. Contexts without a
// logger discard the entry.
func Logf(ctx context.Context, severity logging.Severity, format string, argv ...interface{}) {
	log(ctx, severity, newLogPayload(ctx, fmt.Sprintf(format, argv...)))
}

// LogErr logs err at severity and returns it unchanged.
func LogErr(ctx context.Context, severity logging.Severity, err error) error {
	if err != nil {
		log(ctx, severity, newLogPayload(ctx, err.Error()))
	}
	return err
}

func log(ctx context.Context, severity logging.Severity, payload logPayload) {
	lg, ok := Logger(ctx)
	if !ok {
		return
	}
	entry := logging.Entry{Severity: severity, Payload: payload}
	gke.SetupSourceLocation(&entry, 2)
	lg.Log(entry)
}

func newLogPayload(ctx context.Context, msg string) logPayload {
	ret := logPayload{Message: msg}
	if v, ok := ctx.Value(extraContextKey).(map[string]interface{}); ok {
		ret.Values = v
	}
	return ret
}
