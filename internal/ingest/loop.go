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

package ingest

import (
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"time"

	"github.com/ajjensen13/marketfeed/internal/util"
)

// Cycler runs one complete ingestion cycle.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// ErrorBackoff is the wait after a failed or panicking cycle.
const ErrorBackoff = 60 * time.Second

// Loop drives a Cycler on a wall-clock cadence until its context ends.
type Loop struct {
	Cycler Cycler
	// Delay returns the wait after a successful cycle. Defaults to
	// UntilNextMinute.
	Delay func(now time.Time) time.Duration
	// BackOff provides the wait after a failed cycle. Defaults to a
	// constant ErrorBackoff.
	BackOff backoff.BackOff
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

// UntilNextMinute returns the time left until the next wall-clock minute,
// measured in whole seconds.
func UntilNextMinute(now time.Time) time.Duration {
	return time.Duration(60-now.Second()) * time.Second
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	delay := l.Delay
	if delay == nil {
		delay = UntilNextMinute
	}
	bo := l.BackOff
	if bo == nil {
		bo = backoff.NewConstantBackOff(ErrorBackoff)
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	sleep := l.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var wait time.Duration
		err := l.runOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			wait = bo.NextBackOff()
			if wait == backoff.Stop {
				wait = ErrorBackoff
			}
			util.Logf(ctx, logging.Error, "ingestion cycle failed, waiting %v: %v", wait, err)
		default:
			bo.Reset()
			wait = delay(now())
			util.Logf(ctx, logging.Debug, "waiting %v until next cycle", wait)
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion cycle panicked: %v", r)
		}
	}()
	return l.Cycler.RunCycle(ctx)
}
