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

// Package api serves the read-only market and news HTTP facades.
package api

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"fmt"
	"github.com/ajjensen13/gke"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"net/http"
	"time"

	"github.com/ajjensen13/marketfeed/internal/util"
)

const (
	RequestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func abort(c *gin.Context, status int, msg string, err error) {
	body := ErrorResponse{Error: msg}
	if err != nil {
		body.Detail = err.Error()
		severity := logging.Warning
		if status >= http.StatusInternalServerError {
			severity = logging.Error
		}
		util.Logf(c.Request.Context(), severity, "%s %s: %s: %v", c.Request.Method, c.Request.URL.Path, msg, err)
	}
	c.AbortWithStatusJSON(status, body)
}

func unavailable(c *gin.Context, dep string) {
	abort(c, http.StatusServiceUnavailable, "service unavailable", fmt.Errorf("%s not initialized", dep))
}

// newRouter returns an engine with request ids, request logging and panic
// recovery installed. lg may be nil.
func newRouter(lg gke.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestContext(lg), gin.CustomRecovery(func(c *gin.Context, rec any) {
		abort(c, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
	}))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func requestContext(lg gke.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := c.Request.Context()
		if lg != nil {
			ctx = util.WithLogger(ctx, lg)
		}
		ctx = util.WithLoggerValue(ctx, "request_id", id)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		util.Logf(ctx, logging.Debug, "%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Serve runs h on addr until ctx ends, then shuts the server down
// gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		util.Logf(ctx, logging.Info, "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server on %s: %w", addr, err)
		}
		util.Logf(ctx, logging.Info, "server on %s stopped", addr)
		return nil
	})
	return g.Wait()
}
