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

package api

import (
	"context"
	"errors"
	"fmt"
	"github.com/ajjensen13/gke"
	"github.com/gin-gonic/gin"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/db"
	"github.com/ajjensen13/marketfeed/internal/model"
)

type NewsStore interface {
	ListNews(ctx context.Context, f db.NewsFilter) ([]model.NewsItem, int, error)
	NewsByID(ctx context.Context, id int64) (model.NewsItem, error)
	Channels(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
}

// NewsApp holds the dependencies of the news API.
type NewsApp struct {
	Store    NewsStore
	Location *time.Location
}

const (
	DefaultNewsLimit = 50
	MaxNewsLimit     = 1000
)

var newsTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

type NewsListResponse struct {
	News   []model.NewsItem `json:"news"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type NewsResponse struct {
	News model.NewsItem `json:"news"`
}

func NewNewsRouter(app *NewsApp, lg gke.Logger) *gin.Engine {
	r := newRouter(lg)
	v1 := r.Group("/api/v1")
	v1.Use(app.requireStore)
	v1.GET("/news", app.list)
	v1.GET("/news/:id", app.byID)
	v1.GET("/news/channel/:channel", app.list)
	v1.GET("/channels", app.channels)
	v1.GET("/tags", app.tags)
	return r
}

func (a *NewsApp) requireStore(c *gin.Context) {
	if a.Store == nil {
		unavailable(c, "database")
		return
	}
	c.Next()
}

func (a *NewsApp) list(c *gin.Context) {
	f, err := a.filter(c)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid query", err)
		return
	}
	items, total, err := a.Store.ListNews(c.Request.Context(), f)
	if err != nil {
		abort(c, http.StatusInternalServerError, "failed to list news", err)
		return
	}
	if items == nil {
		items = []model.NewsItem{}
	}
	c.JSON(http.StatusOK, NewsListResponse{News: items, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// filter reads the list query. The channel path parameter, when present,
// takes precedence over the channel query parameter.
func (a *NewsApp) filter(c *gin.Context) (db.NewsFilter, error) {
	f := db.NewsFilter{
		Channel: c.Query("channel"),
		Search:  strings.TrimSpace(c.Query("search")),
		Limit:   DefaultNewsLimit,
	}
	if ch := c.Param("channel"); ch != "" {
		f.Channel = ch
	}

	var err error
	if s := c.Query("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 1 || f.Limit > MaxNewsLimit {
			return f, fmt.Errorf("limit must be between 1 and %d, got: %s", MaxNewsLimit, s)
		}
	}
	if s := c.Query("offset"); s != "" {
		if f.Offset, err = strconv.Atoi(s); err != nil || f.Offset < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer, got: %s", s)
		}
	}
	if f.StartDate, err = a.parseTime(c.Query("start_date")); err != nil {
		return f, fmt.Errorf("invalid start_date: %w", err)
	}
	if f.EndDate, err = a.parseTime(c.Query("end_date")); err != nil {
		return f, fmt.Errorf("invalid end_date: %w", err)
	}
	for _, t := range strings.Split(c.Query("tags"), ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	return f, nil
}

// parseTime accepts RFC 3339 and zone-less forms. Zone-less values are read
// in the app's location.
func (a *NewsApp) parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range newsTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO 8601 date or datetime", s)
}

func (a *NewsApp) byID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid news id", err)
		return
	}
	item, err := a.Store.NewsByID(c.Request.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "news not found", Detail: c.Param("id")})
	case err != nil:
		abort(c, http.StatusInternalServerError, "failed to get news", err)
	default:
		c.JSON(http.StatusOK, NewsResponse{News: item})
	}
}

func (a *NewsApp) channels(c *gin.Context) {
	a.listStrings(c, a.Store.Channels, "failed to list channels")
}

func (a *NewsApp) tags(c *gin.Context) {
	a.listStrings(c, a.Store.Tags, "failed to list tags")
}

func (a *NewsApp) listStrings(c *gin.Context, list func(context.Context) ([]string, error), msg string) {
	ss, err := list(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, msg, err)
		return
	}
	if ss == nil {
		ss = []string{}
	}
	c.JSON(http.StatusOK, ss)
}
