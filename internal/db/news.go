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

package db

import (
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/jackc/pgx/v4"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/util"
)

// SaveNews stores item and reports whether it was new. An item whose
// (msg_id, channel) is already stored is not an error.
func (s *Store) SaveNews(ctx context.Context, item model.NewsItem) (bool, error) {
	ctx = util.WithLoggerValue(ctx, "action", "load")

	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM news WHERE msg_id = $1 AND channel = $2)`, item.MsgID, item.Channel).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check news %d of %s: %w", item.MsgID, item.Channel, err)
	}
	if exists {
		util.Logf(ctx, logging.Debug, "news %d of %s already exists", item.MsgID, item.Channel)
		return false, nil
	}

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = s.q.Exec(ctx, `INSERT INTO news (msg_id, channel, date, tags, text) VALUES ($1, $2, $3, $4, $5)`, item.MsgID, item.Channel, item.Date, tags, item.Text)
	switch {
	case isUniqueViolation(err):
		util.Logf(ctx, logging.Debug, "news %d of %s was inserted concurrently", item.MsgID, item.Channel)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to insert news %d of %s: %w", item.MsgID, item.Channel, err)
	}
	return true, nil
}

func (s *Store) UpdatePollCursor(ctx context.Context, channel string, at time.Time) error {
	return s.retry(ctx, util.ShortReqTimeout, func(ctx context.Context) error {
		_, err := s.q.Exec(ctx, `INSERT INTO poll_cursors (channel, last_poll_time) VALUES ($1, $2) ON CONFLICT (channel) DO UPDATE SET last_poll_time = $2`, channel, at)
		if err != nil {
			return fmt.Errorf("failed to update poll cursor of %s: %w", channel, err)
		}
		return nil
	})
}

func (s *Store) PollCursor(ctx context.Context, channel string) (model.PollCursor, error) {
	ret := model.PollCursor{Channel: channel}
	err := s.q.QueryRow(ctx, `SELECT last_poll_time FROM poll_cursors WHERE channel = $1`, channel).Scan(&ret.LastPollTime)
	if err != nil {
		return ret, notFound(err, "failed to query poll cursor of %s", channel)
	}
	return ret, nil
}

// NewsFilter narrows ListNews. Zero values do not filter.
type NewsFilter struct {
	Channel   string
	StartDate time.Time
	EndDate   time.Time
	// Tags match when the item carries any of them.
	Tags   []string
	Search string
	Limit  int
	Offset int
}

func (f NewsFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if !f.StartDate.IsZero() {
		add("date >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("date <= $%d", f.EndDate)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d::text[]", f.Tags)
	}
	if f.Search != "" {
		add("text ILIKE '%%' || $%d || '%%'", escapeLike(f.Search))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ListNews returns one page of matching news, newest first, and the total
// number of matches.
func (s *Store) ListNews(ctx context.Context, f NewsFilter) ([]model.NewsItem, int, error) {
	where, args := f.where()

	var total int
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM news`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count news: %w", err)
	}

	n := len(args)
	args = append(args, f.Limit, f.Offset)
	rows, err := s.q.Query(ctx, fmt.Sprintf(`SELECT id, msg_id, channel, date, tags, text FROM news%s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query news: %w", err)
	}
	items, err := scanNews(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) NewsByID(ctx context.Context, id int64) (model.NewsItem, error) {
	var ret model.NewsItem
	err := s.q.QueryRow(ctx, `SELECT id, msg_id, channel, date, tags, text FROM news WHERE id = $1`, id).
		Scan(&ret.ID, &ret.MsgID, &ret.Channel, &ret.Date, &ret.Tags, &ret.Text)
	if err != nil {
		return ret, notFound(err, "failed to query news %d", id)
	}
	return ret, nil
}

// Channels returns the distinct channels with stored news, sorted.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT channel FROM news ORDER BY channel`)
}

// Tags returns every distinct tag of the stored news, sorted.
func (s *Store) Tags(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT lower(tag) AS tag FROM news, unnest(tags) AS tag ORDER BY tag`)
}

func (s *Store) queryStrings(ctx context.Context, sql string) ([]string, error) {
	rows, err := s.q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		ret = append(ret, v)
	}
	return ret, rows.Err()
}

func scanNews(rows pgx.Rows) ([]model.NewsItem, error) {
	defer rows.Close()

	ret := make([]model.NewsItem, 0)
	for rows.Next() {
		var n model.NewsItem
		if err := rows.Scan(&n.ID, &n.MsgID, &n.Channel, &n.Date, &n.Tags, &n.Text); err != nil {
			return nil, fmt.Errorf("failed to scan news: %w", err)
		}
		if n.Tags == nil {
			n.Tags = []string{}
		}
		ret = append(ret, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read news: %w", err)
	}
	return ret, nil
}
