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
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedCycler struct {
	results []error
	panics  map[int]bool
	n       int
	cancel  context.CancelFunc
}

func (c *scriptedCycler) RunCycle(ctx context.Context) error {
	i := c.n
	c.n++
	if i == len(c.results)-1 {
		c.cancel()
	}
	if c.panics[i] {
		panic("nil map write")
	}
	return c.results[i]
}

func TestLoopWaitsBackoffAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycler := &scriptedCycler{results: []error{nil, errors.New("boom"), nil, nil}, panics: map[int]bool{2: true}, cancel: cancel}
	var sleeps []time.Duration
	l := &Loop{
		Cycler: cycler,
		Now:    func() time.Time { return time.Date(2024, 3, 1, 10, 0, 42, 0, time.UTC) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run()=%v want context.Canceled", err)
	}
	if cycler.n != 4 {
		t.Fatalf("cycles=%d want 4", cycler.n)
	}
	want := []time.Duration{18 * time.Second, ErrorBackoff, ErrorBackoff}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps=%v want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps=%v want %v", sleeps, want)
		}
	}
}

func TestUntilNextMinute(t *testing.T) {
	for sec, want := range map[int]time.Duration{0: time.Minute, 1: 59 * time.Second, 59: time.Second} {
		now := time.Date(2024, 3, 1, 10, 0, sec, 500, time.UTC)
		if got := UntilNextMinute(now); got != want {
			t.Fatalf("UntilNextMinute(:%02d)=%v want %v", sec, got, want)
		}
	}
}

func TestSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep()=%v want context.Canceled", err)
	}
}
