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

// Package extract holds the clients for the market data and news sources.
package extract

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrToManyRequests = errors.New("error: too many requests")
	// ErrConnection covers transport failures and timeouts.
	ErrConnection = errors.New("error: connection failed")
	// ErrProtocol covers unexpected statuses and malformed responses.
	ErrProtocol = errors.New("error: unexpected response")
	// ErrInvalidRequest is returned before any request is made.
	ErrInvalidRequest = errors.New("error: invalid request")

	ErrChannelNotFound = errors.New("error: channel not found")
	ErrChannelPrivate  = errors.New("error: channel is private")
)

// RateLimitError is returned when the news source asks the caller to back
// off for RetryAfter.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ValidIntervals are the candle intervals the market data source accepts:
// minutes (1, 10, 60), day (24), week (7), month (31) and quarter (4).
var ValidIntervals = map[int]bool{1: true, 10: true, 60: true, 24: true, 7: true, 31: true, 4: true}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type CandlesRequest struct {
	Ticker string
	// From and Till are optional YYYY-MM-DD dates.
	From     string
	Till     string
	Interval int
}

func (r CandlesRequest) Validate() error {
	if r.Ticker == "" {
		return fmt.Errorf("ticker is required: %w", ErrInvalidRequest)
	}
	if r.From != "" && !datePattern.MatchString(r.From) {
		return fmt.Errorf("start_date must be in format YYYY-MM-DD (e.g., 2024-01-01), got: %s: %w", r.From, ErrInvalidRequest)
	}
	if r.Till != "" && !datePattern.MatchString(r.Till) {
		return fmt.Errorf("end_date must be in format YYYY-MM-DD (e.g., 2024-01-01), got: %s: %w", r.Till, ErrInvalidRequest)
	}
	if !ValidIntervals[r.Interval] {
		return fmt.Errorf("interval must be one of: %s, got: %d: %w", validIntervalList(), r.Interval, ErrInvalidRequest)
	}
	return nil
}

func validIntervalList() string {
	ii := make([]int, 0, len(ValidIntervals))
	for i := range ValidIntervals {
		ii = append(ii, i)
	}
	sort.Ints(ii)
	ss := make([]string, len(ii))
	for n, i := range ii {
		ss[n] = fmt.Sprint(i)
	}
	return strings.Join(ss, ", ")
}

func handleErr(msg string, resp *http.Response, err error) error {
	switch {
	case resp == nil:
		return fmt.Errorf("%s: %v: %w", msg, err, ErrConnection)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, ErrToManyRequests)
	case resp.Body != nil:
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("error while to parsing error response %v. %s: %v: %w", readErr, msg, err, ErrProtocol)
		}
		return fmt.Errorf("%s: %v (%s): %w", msg, err, body, ErrProtocol)
	default:
		return fmt.Errorf("%s: %v: %w", msg, err, ErrProtocol)
	}
}
