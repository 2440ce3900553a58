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
)

func TestFilterNewMarksOncePerKey(t *testing.T) {
	seen := NewSeenSet[string]()
	seen.Add("a")

	fresh, marked := FilterNew([]string{"a", "b", "b", "", "c"}, func(s string) (string, bool) {
		return s, s != ""
	}, seen)

	if len(fresh) != 2 || fresh[0] != "b" || fresh[1] != "c" {
		t.Fatalf("fresh=%v want [b c]", fresh)
	}
	if len(marked) != 2 || seen.Len() != 3 {
		t.Fatalf("marked=%v seen=%d want 2 marked, 3 seen", marked, seen.Len())
	}
}

func TestPersistRollsBackMarks(t *testing.T) {
	seen := NewSeenSet[int]()
	seen.Add(1)
	fresh, marked := FilterNew([]int{1, 2, 3}, func(i int) (int, bool) { return i, true }, seen)

	boom := errors.New("boom")
	err := Persist(context.Background(), fresh, marked, seen, func(ctx context.Context, batch []int) error {
		if len(batch) != 2 {
			t.Fatalf("len(batch)=%d want 2", len(batch))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Persist()=%v want boom", err)
	}
	if seen.Len() != 1 || !seen.Contains(1) {
		t.Fatalf("seen=%d want only the key marked before", seen.Len())
	}
}

func TestPersistSkipsEmptyBatch(t *testing.T) {
	called := false
	err := Persist(context.Background(), nil, nil, NewSeenSet[int](), func(ctx context.Context, batch []int) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Fatalf("Persist()=%v called=%v want nil, false", err, called)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Polling: "polling", Filtering: "filtering", Persisting: "persisting", State(9): "unknown"} {
		if s.String() != want {
			t.Fatalf("%d.String()=%q want %q", s, s.String(), want)
		}
	}
}
